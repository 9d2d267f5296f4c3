// Package guard decides, before a page is served, whether the navigation
// proceeds or is redirected.
//
// Guards read the session cookie and a client store, may perform a single
// identity refresh, and return a Decision. They never return errors and never
// panic; a failing refresh is logged and navigation continues.
package guard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

// State is the part of a client store the guards use.
type State interface {
	Status() store.Status
	Stale() bool
	Refresh(ctx context.Context) (bool, error)
	UpdateAuthStatus(token string)
}

type Navigation struct {
	To   string
	From string
}

// Decision is the outcome of a guard. An empty Redirect lets navigation proceed.
type Decision struct {
	Redirect string
}

func (d Decision) Allowed() bool { return d.Redirect == "" }

var allow = Decision{}

type Guards struct {
	paths   config.Paths
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(paths config.Paths, logger *zap.SugaredLogger, m *metrics.Metrics) *Guards {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Guards{paths: paths, logger: logger, metrics: m}
}

// Run applies ensure-authenticated, redirect-if-authenticated and
// protect-route in that order and returns the first redirect.
func (g *Guards) Run(ctx context.Context, nav Navigation, st State, cookie string) Decision {
	validated := g.ensure(ctx, nav, st, cookie)

	if d := g.RedirectIfAuthenticated(nav, st); !d.Allowed() {
		return d
	}
	// a cookie the refresh just rejected is not a valid session
	if validated != nil && !*validated {
		cookie = ""
	}
	return g.Protect(nav, st, cookie)
}

// RedirectIfAuthenticated sends authenticated users away from the login and
// signup pages.
func (g *Guards) RedirectIfAuthenticated(nav Navigation, st State) (d Decision) {
	defer g.contain("redirect_if_authenticated", nav, &d, allow)

	if nav.To != g.paths.Login && nav.To != g.paths.Signup {
		return allow
	}
	if !st.Status().IsAuthenticated {
		g.metrics.GuardDecision("redirect_if_authenticated", "allow")
		return allow
	}
	g.metrics.GuardDecision("redirect_if_authenticated", "redirect")
	return Decision{Redirect: g.paths.Profile}
}

// EnsureAuthenticated syncs the store with the session before any page. It
// always allows navigation.
func (g *Guards) EnsureAuthenticated(ctx context.Context, nav Navigation, st State, cookie string) Decision {
	g.ensure(ctx, nav, st, cookie)
	return allow
}

// ensure performs at most one refresh. It returns nil when no refresh was
// attempted or its outcome is unknown, and otherwise whether the refresh
// found a user.
func (g *Guards) ensure(ctx context.Context, nav Navigation, st State, cookie string) (validated *bool) {
	var d Decision
	defer g.contain("ensure_authenticated", nav, &d, allow)

	status := st.Status()
	switch {
	case st.Stale():
		// restored snapshot: revalidate once
	case !status.IsAuthenticated && !status.IsLoading:
		if cookie != "" {
			st.UpdateAuthStatus(cookie)
		}
	default:
		g.metrics.GuardDecision("ensure_authenticated", "allow")
		return nil
	}

	ok, err := st.Refresh(ctx)
	g.metrics.GuardDecision("ensure_authenticated", "allow")
	if err != nil {
		// the provider did not answer; the cookie may still be good
		g.logger.Warnw("identity refresh failed", "to", nav.To, "err", err)
		return nil
	}
	if !ok {
		g.logger.Debugw("navigation without identity", "to", nav.To)
	}
	return &ok
}

// Protect redirects to the login page when a protected page is requested
// without a session.
func (g *Guards) Protect(nav Navigation, st State, cookie string) (d Decision) {
	denied := Decision{Redirect: g.paths.Login}
	defer g.contain("protect", nav, &d, denied)

	if !g.paths.IsProtected(nav.To) {
		return allow
	}
	status := st.Status()
	if status.IsAuthenticated || status.IsLoading {
		g.metrics.GuardDecision("protect", "allow")
		return allow
	}
	if cookie != "" {
		st.UpdateAuthStatus(cookie)
		g.metrics.GuardDecision("protect", "allow")
		return allow
	}
	g.metrics.GuardDecision("protect", "redirect")
	return denied
}

// contain turns a panic into fallback so navigation always resolves.
func (g *Guards) contain(guard string, nav Navigation, d *Decision, fallback Decision) {
	if r := recover(); r != nil {
		g.logger.Errorw("route guard panicked", "guard", guard, "to", nav.To, "panic", fmt.Sprint(r))
		g.metrics.GuardDecision(guard, "error")
		*d = fallback
	}
}
