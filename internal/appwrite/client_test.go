package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
)

func testConfig(endpoint string) config.Appwrite {
	return config.Appwrite{Endpoint: endpoint, ProjectID: "proj", APIKey: "key"}
}

func TestAdminClient_CreateEmailPasswordSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/account/sessions/email", r.URL.Path)
		assert.Equal(t, "proj", r.Header.Get("X-Appwrite-Project"))
		assert.Equal(t, "key", r.Header.Get("X-Appwrite-Key"))
		assert.Empty(t, r.Header.Get("X-Appwrite-Session"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["email"])
		assert.Equal(t, "secret", body["password"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"$id":"s1","userId":"u1","expire":"2030-01-01T00:00:00.000+00:00","secret":"tok123"}`))
	}))
	defer srv.Close()

	c := NewAdminClient(testConfig(srv.URL))
	s, err := c.CreateEmailPasswordSession(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok123", s.Secret)

	exp, err := s.ExpireTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), exp.UTC())
}

func TestClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials.","code":401,"type":"user_invalid_credentials"}`))
	}))
	defer srv.Close()

	_, err := NewAdminClient(testConfig(srv.URL)).CreateEmailPasswordSession(context.Background(), "a@b.com", "bad")
	require.Error(t, err)

	ae, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, ae.Unauthorized())
	assert.Equal(t, "Invalid credentials.", ae.Message)
	assert.Equal(t, "user_invalid_credentials", ae.Type)
}

func TestClient_UndecodableErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewSessionClient(testConfig(srv.URL), "tok").GetAccount(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "GetAccount", te.Op)
	_, ok := AsError(err)
	assert.False(t, ok)
}

func TestClient_NetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSessionClient(testConfig(url), "tok").GetAccount(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestSessionClient_SendsSessionHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		assert.Equal(t, "tok123", r.Header.Get("X-Appwrite-Session"))
		assert.Empty(t, r.Header.Get("X-Appwrite-Key"))
		_, _ = w.Write([]byte(`{"$id":"u1","name":"Ann","email":"a@b.com","labels":["vip"],"prefs":{"theme":"dark"}}`))
	}))
	defer srv.Close()

	u, err := NewSessionClient(testConfig(srv.URL), "tok123").GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, []string{"vip"}, u.Labels)
	assert.Equal(t, "dark", u.Prefs["theme"])
}

func TestAnonymousClient_NoNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewSessionClient(testConfig(srv.URL), "")
	assert.True(t, c.Anonymous())

	_, err := c.GetAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, c.DeleteSession(context.Background(), "current"), ErrNoSession)
	_, err = c.ListDocuments(context.Background(), "db", "orders")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, hits.Load())
}

func TestConfigErrorSurfacesAtFirstUse(t *testing.T) {
	c := NewAdminClient(config.Appwrite{Endpoint: "http://unused"})

	_, err := c.CreateEmailPasswordSession(context.Background(), "a@b.com", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMisconfigured))
	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"APPWRITE_PROJECT_ID", "APPWRITE_API_KEY_SECRET"}, ce.Missing)
}

func TestDeleteSession_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/account/sessions/current", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewSessionClient(testConfig(srv.URL), "tok").DeleteSession(context.Background(), "current"))
}

func TestListDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/db1/collections/orders/documents", r.URL.Path)
		_, _ = w.Write([]byte(`{"total":2,"documents":[{"$id":"o1","amount":3},{"$id":"o2"}]}`))
	}))
	defer srv.Close()

	list, err := NewSessionClient(testConfig(srv.URL), "tok").ListDocuments(context.Background(), "db1", "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Documents, 2)
	assert.JSONEq(t, `{"$id":"o1","amount":3}`, string(list.Documents[0]))
}

func TestCreateOAuth2Token_ReturnsLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/tokens/oauth2/github", r.URL.Path)
		assert.Equal(t, "http://app/api/auth/oauth", r.URL.Query().Get("success"))
		assert.Equal(t, "http://app/account/signup", r.URL.Query().Get("failure"))
		http.Redirect(w, r, "https://github.com/login/oauth/authorize?client_id=x", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	loc, err := NewAdminClient(testConfig(srv.URL)).CreateOAuth2Token(context.Background(), "github", "http://app/api/auth/oauth", "http://app/account/signup")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/login/oauth/authorize?client_id=x", loc)
}

func TestCreateJWT_ExpiresAt(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "u1",
		"exp":    exp.Unix(),
	}).SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/jwts", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"jwt": token})
	}))
	defer srv.Close()

	j, err := NewSessionClient(testConfig(srv.URL), "tok").CreateJWT(context.Background())
	require.NoError(t, err)
	got, err := j.ExpiresAt()
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
}

func TestParseTime_Rejects(t *testing.T) {
	_, err := ParseTime("tomorrow")
	require.Error(t, err)
}
