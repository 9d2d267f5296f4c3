package guard

import (
	"context"
	"net/http"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

type storeKey struct{}

// WithStore returns a context carrying st.
func WithStore(ctx context.Context, st *store.Store) context.Context {
	return context.WithValue(ctx, storeKey{}, st)
}

// StoreFrom returns the store placed by Middleware, or nil.
func StoreFrom(ctx context.Context) *store.Store {
	st, _ := ctx.Value(storeKey{}).(*store.Store)
	return st
}

// StoreFactory builds the client store for one request bound to the session
// cookie value (possibly empty).
type StoreFactory func(r *http.Request, token string) *store.Store

// Middleware runs the guards for every request and either redirects with 303
// or serves the page with the store in the request context.
func (g *Guards) Middleware(newStore StoreFactory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie := auth.ReadSessionCookie(r)
			st := newStore(r, cookie)
			nav := Navigation{To: r.URL.Path, From: r.Referer()}

			if d := g.Run(r.Context(), nav, st, cookie); !d.Allowed() {
				g.logger.Debugw("navigation redirected", "to", nav.To, "redirect", d.Redirect)
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithStore(r.Context(), st)))
		})
	}
}
