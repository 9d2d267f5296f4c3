package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite/appwritetest"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
)

func newHandler(t *testing.T, logger *zap.SugaredLogger) (*appwritetest.Server, http.Handler) {
	t.Helper()
	fake := appwritetest.New(t)
	cfg := &config.Config{
		PublicURL:     "http://app.test",
		OAuthProvider: "github",
		Appwrite:      fake.Config(),
		Paths:         config.DefaultPaths(),
	}
	reg := prometheus.NewRegistry()
	h, err := RegisterRoutes(Deps{
		Config:   cfg,
		Logger:   logger,
		Gatherer: reg,
		Metrics:  metrics.New(reg),
		Service:  auth.NewService(cfg.Appwrite, logger),
	})
	require.NoError(t, err)
	return fake, h
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newHandler(t, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestID(t *testing.T) {
	_, h := newHandler(t, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = serve(h, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestLoggingMiddleware_IncludesRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, h := newHandler(t, zap.New(core).Sugar())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	serve(h, req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "/health", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestAPIRoutes(t *testing.T) {
	fake, h := newHandler(t, nil)
	fake.AddUser("a@b.com", "secret12", "Ann")
	fake.NextSecrets("tok-r")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/auth/user", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"statusCode":401,"statusMessage":"Unauthorized: No session cookie found"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.com","password":"secret12"}`))
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "tok-r"})
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res entity.UserResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.User)
	assert.Equal(t, "Ann", res.User.Name)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPagesAreGuarded(t *testing.T) {
	_, h := newHandler(t, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/account/profile", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/account/login", rec.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newHandler(t, nil)
	serve(h, httptest.NewRequest(http.MethodGet, "/account/profile", nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "\nguard_decisions_total{")
	// a visitor without a cookie is anonymous, not a failed refresh
	assert.Contains(t, body, `identity_refresh_total{result="anonymous"} 1`)
	assert.NotContains(t, body, `identity_refresh_total{result="error"}`)
}
