package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

// fakeAPI accepts exactly one session token.
type fakeAPI struct {
	valid     string
	token     string
	userCalls atomic.Int32
	panics    bool
	down      error
}

func (f *fakeAPI) Login(context.Context, entity.Credentials) (*entity.Session, error) {
	f.token = f.valid
	return &entity.Session{Secret: f.valid}, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.token = ""
	return nil
}

func (f *fakeAPI) CurrentUser(context.Context) (*entity.UserResult, error) {
	f.userCalls.Add(1)
	if f.panics {
		panic("provider exploded")
	}
	if f.down != nil {
		return nil, f.down
	}
	if f.token == "" || f.token != f.valid {
		return &entity.UserResult{Error: "Unauthorized: No session cookie found"}, nil
	}
	return &entity.UserResult{User: &entity.User{ID: "u1", Name: "Ann"}}, nil
}

func newGuards() *Guards {
	return New(config.DefaultPaths(), nil, metrics.New(prometheus.NewRegistry()))
}

func nav(to string) Navigation { return Navigation{To: to, From: "/"} }

func TestRedirectIfAuthenticated(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok"}
	st := store.New(api)

	assert.True(t, g.RedirectIfAuthenticated(nav("/account/login"), st).Allowed())

	require.True(t, st.Login(t.Context(), entity.Credentials{}))
	for _, p := range []string{"/account/login", "/account/signup"} {
		assert.Equal(t, Decision{Redirect: "/account/profile"}, g.RedirectIfAuthenticated(nav(p), st))
	}
	assert.True(t, g.RedirectIfAuthenticated(nav("/account/orders"), st).Allowed())
}

func TestRun_LoginPageWhileAuthenticated(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok"}
	st := store.New(api)
	require.True(t, st.Login(t.Context(), entity.Credentials{}))

	d := g.Run(t.Context(), nav("/account/login"), st, "tok")
	assert.Equal(t, "/account/profile", d.Redirect)
	assert.Zero(t, api.userCalls.Load(), "authenticated store needs no refresh")
}

func TestEnsureAuthenticated_ExactlyOneRefresh(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok", token: "tok"}
	st := store.New(api)

	d := g.EnsureAuthenticated(t.Context(), nav("/"), st, "tok")
	assert.True(t, d.Allowed())
	assert.EqualValues(t, 1, api.userCalls.Load())
	assert.Equal(t, "Ann", st.Status().User.Name)

	g.EnsureAuthenticated(t.Context(), nav("/"), st, "tok")
	assert.EqualValues(t, 1, api.userCalls.Load(), "already authenticated")
}

func TestEnsureAuthenticated_CookieSyncsStatusFirst(t *testing.T) {
	g := newGuards()
	st := &recordingState{}

	g.EnsureAuthenticated(t.Context(), nav("/"), st, "tok")
	assert.Equal(t, []string{"update:tok", "refresh"}, st.calls)

	st = &recordingState{}
	g.EnsureAuthenticated(t.Context(), nav("/"), st, "")
	assert.Equal(t, []string{"refresh"}, st.calls)

	st = &recordingState{status: store.Status{IsLoading: true}}
	g.EnsureAuthenticated(t.Context(), nav("/"), st, "tok")
	assert.Empty(t, st.calls, "no refresh while another is loading")
}

func TestEnsureAuthenticated_SwallowsPanic(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok", panics: true}
	st := store.New(api)

	var d Decision
	assert.NotPanics(t, func() { d = g.EnsureAuthenticated(t.Context(), nav("/"), st, "tok") })
	assert.True(t, d.Allowed())
	assert.False(t, st.Status().IsLoading)
}

func TestEnsureAuthenticated_RevalidatesRestoredSnapshot(t *testing.T) {
	g := newGuards()
	st := &recordingState{stale: true, status: store.Status{IsAuthenticated: true, User: &entity.User{ID: "u1"}}}

	g.EnsureAuthenticated(t.Context(), nav("/account/profile"), st, "")
	assert.Equal(t, []string{"refresh"}, st.calls)
}

func TestProtect(t *testing.T) {
	g := newGuards()

	st := &recordingState{}
	assert.True(t, g.Protect(nav("/"), st, "").Allowed(), "public page")
	assert.Equal(t, "/account/login", g.Protect(nav("/account/orders"), st, "").Redirect)

	st = &recordingState{}
	assert.True(t, g.Protect(nav("/account/profile"), st, "tok").Allowed())
	assert.Equal(t, []string{"update:tok"}, st.calls)

	st = &recordingState{status: store.Status{IsAuthenticated: true}}
	assert.True(t, g.Protect(nav("/account/profile"), st, "").Allowed())
}

func TestProtect_PanicRedirectsToLogin(t *testing.T) {
	g := newGuards()
	st := &recordingState{panicOnStatus: true}
	assert.Equal(t, "/account/login", g.Protect(nav("/account/profile"), st, "").Redirect)
}

func TestRun_InvalidCookieOnProtectedPage(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok", token: "forged"}
	st := store.New(api)

	d := g.Run(t.Context(), nav("/account/profile"), st, "forged")
	assert.Equal(t, "/account/login", d.Redirect)
	assert.EqualValues(t, 1, api.userCalls.Load())
	assert.True(t, st.Status().Anonymous())
}

func TestRun_ProviderOutageKeepsCookie(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok", token: "tok", down: &appwrite.TransportError{Op: "GetAccount", Err: errors.New("connection refused")}}
	st := store.New(api)

	d := g.Run(t.Context(), nav("/account/profile"), st, "tok")
	assert.True(t, d.Allowed(), "an unreachable provider must not sign the user out")
	assert.EqualValues(t, 1, api.userCalls.Load())
	assert.True(t, st.Status().IsAuthenticated)
	assert.Nil(t, st.Status().User)
}

func TestRun_ProviderOutageWithoutCookie(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{down: &appwrite.TransportError{Op: "GetAccount", Err: errors.New("connection refused")}}
	st := store.New(api)

	d := g.Run(t.Context(), nav("/account/orders"), st, "")
	assert.Equal(t, "/account/login", d.Redirect)
}

func TestRun_ValidCookieOnProtectedPage(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok", token: "tok"}
	st := store.New(api)

	d := g.Run(t.Context(), nav("/account/profile"), st, "tok")
	assert.True(t, d.Allowed())
	assert.EqualValues(t, 1, api.userCalls.Load())
	assert.True(t, st.Status().IsAuthenticated)
}

func TestMiddleware(t *testing.T) {
	g := newGuards()
	api := &fakeAPI{valid: "tok"}
	factory := func(_ *http.Request, token string) *store.Store {
		api.token = token
		return store.New(api)
	}
	var seen *store.Store
	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = StoreFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := g.Middleware(factory)(page)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/profile", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/account/login", rec.Header().Get("Location"))
	assert.Nil(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/account/profile", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "tok"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "Ann", seen.Status().User.Name)

	req = httptest.NewRequest(http.MethodGet, "/account/login", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "tok"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/account/profile", rec.Header().Get("Location"))
}

func TestStoreFrom_Empty(t *testing.T) {
	assert.Nil(t, StoreFrom(context.Background()))
}

// recordingState records the store calls the guards make.
type recordingState struct {
	status        store.Status
	stale         bool
	panicOnStatus bool
	calls         []string
}

func (r *recordingState) Status() store.Status {
	if r.panicOnStatus {
		panic("boom")
	}
	return r.status
}

func (r *recordingState) Stale() bool { return r.stale }

func (r *recordingState) Refresh(context.Context) (bool, error) {
	r.calls = append(r.calls, "refresh")
	r.stale = false
	return r.status.User != nil, nil
}

func (r *recordingState) UpdateAuthStatus(token string) {
	r.calls = append(r.calls, "update:"+token)
	r.status.IsAuthenticated = token != ""
}
