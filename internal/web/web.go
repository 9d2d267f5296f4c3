// Package web serves the account pages. Every GET page runs behind the route
// guards; the login and signup forms post back to this package.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/guard"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

const (
	ordersPath        = "/account/orders"
	msgInvalidLogin   = "Invalid email or password."
	msgRenderFailed   = "page unavailable"
	formEndpointLogin = "page_login"
)

//go:embed templates/*.html
var templateFS embed.FS

// view is the data every template receives.
type view struct {
	Title         string
	Paths         config.Paths
	OAuthProvider string
	Authenticated bool
	User          *entity.User
	Error         string
	Name          string
	Email         string
	Orders        *entity.OrderList
}

type Pages struct {
	svc           *auth.Service
	cookies       auth.Cookies
	paths         config.Paths
	oauthProvider string
	logger        *zap.SugaredLogger
	metrics       *metrics.Metrics
	pages         map[string]*template.Template
}

func New(svc *auth.Service, cookies auth.Cookies, cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) (*Pages, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "login", "signup", "profile", "orders"} {
		t, err := template.Must(layout.Clone()).ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s page: %w", name, err)
		}
		pages[name] = t
	}
	return &Pages{
		svc:           svc,
		cookies:       cookies,
		paths:         cfg.Paths,
		oauthProvider: cfg.OAuthProvider,
		logger:        logger,
		metrics:       m,
		pages:         pages,
	}, nil
}

// NewStore builds the per-request client store bound to token.
func (p *Pages) NewStore(_ *http.Request, token string) *store.Store {
	return p.storeFor(auth.NewDirectAPI(p.svc, token))
}

func (p *Pages) storeFor(api store.API) *store.Store {
	return store.New(api,
		store.WithLogger(p.logger),
		store.WithRefreshObserver(p.metrics.IdentityRefresh),
	)
}

// Mount registers the pages on r. GET pages are guarded.
func (p *Pages) Mount(r chi.Router, g *guard.Guards) {
	r.Group(func(r chi.Router) {
		r.Use(g.Middleware(p.NewStore))
		r.Get(p.paths.Home, p.home)
		r.Get(p.paths.Login, p.loginForm)
		r.Get(p.paths.Signup, p.signupForm)
		r.Get(p.paths.Profile, p.profile)
		r.Get(ordersPath, p.orders)
	})
	r.Post(p.paths.Login, p.login)
	r.Post(p.paths.Signup, p.signup)
}

func (p *Pages) home(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "home", view{Title: "Home"})
}

func (p *Pages) loginForm(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "login", view{Title: "Log in"})
}

func (p *Pages) signupForm(w http.ResponseWriter, r *http.Request) {
	v := view{Title: "Sign up"}
	if r.URL.Query().Get("error") != "" {
		v.Error = "Sign in with " + p.oauthProvider + " failed. Please try again."
	}
	p.render(w, r, http.StatusOK, "signup", v)
}

func (p *Pages) profile(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "profile", view{Title: "Profile"})
}

func (p *Pages) orders(w http.ResponseWriter, r *http.Request) {
	v := view{Title: "Orders"}
	list, err := p.svc.ListOrders(r.Context(), auth.ReadSessionCookie(r))
	if err != nil {
		p.logger.Warnw("orders page failed", "err", err)
		v.Error = auth.UserMessage(err)
	}
	v.Orders = list
	p.render(w, r, http.StatusOK, "orders", v)
}

// login drives a fresh store through DirectAPI and hands the issued session
// to the browser as the session cookie.
func (p *Pages) login(w http.ResponseWriter, r *http.Request) {
	creds := entity.Credentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	v := view{Title: "Log in", Email: creds.Email}
	if creds.Email == "" || creds.Password == "" {
		p.metrics.AuthRequest(formEndpointLogin, "invalid")
		v.Error = auth.UserMessage(auth.ErrMissingCredentials)
		p.render(w, r, http.StatusBadRequest, "login", v)
		return
	}

	api := auth.NewDirectAPI(p.svc, "")
	if !p.storeFor(api).Login(r.Context(), creds) {
		p.metrics.AuthRequest(formEndpointLogin, "rejected")
		v.Error = msgInvalidLogin
		p.render(w, r, http.StatusUnauthorized, "login", v)
		return
	}
	token, expire := api.Session()
	p.cookies.Set(w, token, expire)
	p.metrics.AuthRequest(formEndpointLogin, "ok")
	http.Redirect(w, r, p.paths.Profile, http.StatusSeeOther)
}

func (p *Pages) signup(w http.ResponseWriter, r *http.Request) {
	req := entity.SignupRequest{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	_, issued, err := p.svc.Signup(r.Context(), req)
	if err != nil {
		p.logger.Infow("signup form rejected", "err", err)
		p.metrics.AuthRequest("page_signup", "rejected")
		v := view{Title: "Sign up", Name: req.Name, Email: req.Email, Error: auth.UserMessage(err)}
		p.render(w, r, http.StatusUnprocessableEntity, "signup", v)
		return
	}
	p.cookies.Set(w, issued.Secret, issued.ExpiresAt)
	p.metrics.AuthRequest("page_signup", "ok")
	http.Redirect(w, r, p.paths.Profile, http.StatusSeeOther)
}

// render fills in the navigation state from the request's store and writes
// the page. Nothing is written when the template fails.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	v.Paths = p.paths
	v.OAuthProvider = p.oauthProvider
	if st := guard.StoreFrom(r.Context()); st != nil {
		s := st.Status()
		v.Authenticated = s.IsAuthenticated
		if v.User == nil {
			v.User = s.User
		}
	}

	var buf bytes.Buffer
	if err := p.pages[name].ExecuteTemplate(&buf, "layout", v); err != nil {
		p.logger.Errorw("render page", "page", name, "err", err)
		http.Error(w, msgRenderFailed, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
