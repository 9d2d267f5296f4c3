package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "HTTP_ADDR", "PUBLIC_URL", "OAUTH_PROVIDER", "DATABASE_URL", "CONFIG_FILE",
		"APPWRITE_ENDPOINT", "APPWRITE_PROJECT_ID", "APPWRITE_API_KEY_SECRET",
		"APPWRITE_DATABASE_ID", "APPWRITE_COLLECTION_ORDERS",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := FromEnv()
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr)
	assert.Equal(t, "github", cfg.OAuthProvider)
	assert.Equal(t, "http://localhost:3000", cfg.PublicURL)
	assert.False(t, cfg.Production())
	assert.Equal(t, DefaultPaths(), cfg.Paths)
}

func TestFromEnv_ProductionAndTrim(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("APPWRITE_ENDPOINT", "https://cloud.appwrite.io/v1/")
	t.Setenv("PUBLIC_URL", "https://example.com/")

	cfg := FromEnv()
	assert.True(t, cfg.Production())
	assert.Equal(t, "https://cloud.appwrite.io/v1", cfg.Appwrite.Endpoint)
	assert.Equal(t, "https://example.com", cfg.PublicURL)
}

func TestValidate_ListsAllMissing(t *testing.T) {
	cfg := &Config{Appwrite: Appwrite{Endpoint: "http://x"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMisconfigured))

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{
		"APPWRITE_PROJECT_ID", "APPWRITE_API_KEY_SECRET",
		"APPWRITE_DATABASE_ID", "APPWRITE_COLLECTION_ORDERS",
	}, ce.Missing)
	assert.Contains(t, err.Error(), "APPWRITE_API_KEY_SECRET")
}

func TestValidate_Complete(t *testing.T) {
	cfg := &Config{Appwrite: Appwrite{
		Endpoint: "http://x", ProjectID: "p", APIKey: "k", DatabaseID: "db", OrdersCollectionID: "orders",
	}}
	require.NoError(t, cfg.Validate())
}

func TestRequireSession_IgnoresKey(t *testing.T) {
	a := Appwrite{Endpoint: "http://x", ProjectID: "p"}
	require.NoError(t, a.RequireSession())
	require.Error(t, a.RequireAdmin())
}

func TestIsProtected(t *testing.T) {
	p := DefaultPaths()

	assert.True(t, p.IsProtected("/account/profile"))
	assert.True(t, p.IsProtected("/account/orders/42"))
	assert.False(t, p.IsProtected("/account/login"))
	assert.False(t, p.IsProtected("/account/profiles"))
	assert.False(t, p.IsProtected("/"))
}

func TestLoad_YAMLOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
oauth_provider: google
paths:
  login: /signin
  protected:
    - /me
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "google", cfg.OAuthProvider)
	assert.Equal(t, "/signin", cfg.Paths.Login)
	assert.Equal(t, "/account/signup", cfg.Paths.Signup)
	assert.Equal(t, []string{"/me"}, cfg.Paths.Protected)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paths: [unclosed"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
}
