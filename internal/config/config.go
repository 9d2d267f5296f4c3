// Package config loads the service configuration from a .env file, the process
// environment and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMisconfigured matches every *ConfigError via errors.Is.
var ErrMisconfigured = errors.New("configuration error")

// ConfigError lists required settings that are absent.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: missing required setting(s): %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Is(target error) bool { return target == ErrMisconfigured }

// Appwrite holds identity provider settings.
type Appwrite struct {
	Endpoint           string
	ProjectID          string
	APIKey             string
	DatabaseID         string
	OrdersCollectionID string
}

func (a Appwrite) require(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigError{Missing: missing}
}

// RequireAdmin checks the settings an admin client needs.
func (a Appwrite) RequireAdmin() error {
	return a.require(
		"APPWRITE_ENDPOINT", a.Endpoint,
		"APPWRITE_PROJECT_ID", a.ProjectID,
		"APPWRITE_API_KEY_SECRET", a.APIKey,
	)
}

// RequireSession checks the settings a session client needs.
func (a Appwrite) RequireSession() error {
	return a.require(
		"APPWRITE_ENDPOINT", a.Endpoint,
		"APPWRITE_PROJECT_ID", a.ProjectID,
	)
}

// RequireOrders checks the database/collection pair used for order listing.
func (a Appwrite) RequireOrders() error {
	return a.require(
		"APPWRITE_DATABASE_ID", a.DatabaseID,
		"APPWRITE_COLLECTION_ORDERS", a.OrdersCollectionID,
	)
}

// Paths are the navigation targets used by the route guards.
type Paths struct {
	Home      string   `yaml:"home"`
	Login     string   `yaml:"login"`
	Signup    string   `yaml:"signup"`
	Profile   string   `yaml:"profile"`
	Protected []string `yaml:"protected"`
}

// DefaultPaths mirror the account section of the web app.
func DefaultPaths() Paths {
	return Paths{
		Home:      "/",
		Login:     "/account/login",
		Signup:    "/account/signup",
		Profile:   "/account/profile",
		Protected: []string{"/account/profile", "/account/orders"},
	}
}

// IsProtected reports whether path falls under one of the protected prefixes.
func (p Paths) IsProtected(path string) bool {
	for _, prefix := range p.Protected {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

type Config struct {
	Env           string
	Addr          string
	PublicURL     string
	OAuthProvider string
	DatabaseURL   string
	Appwrite      Appwrite
	Paths         Paths
}

// Production reports whether cookies must carry the Secure flag.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate reports every required setting that is missing. Handlers surface
// the same error on first use, so callers may choose to only warn here.
func (c *Config) Validate() error {
	var missing []string
	for _, err := range []error{c.Appwrite.RequireAdmin(), c.Appwrite.RequireOrders()} {
		var ce *ConfigError
		if errors.As(err, &ce) {
			missing = append(missing, ce.Missing...)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// FromEnv reads configuration from environment variables only.
func FromEnv() *Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	provider := os.Getenv("OAUTH_PROVIDER")
	if provider == "" {
		provider = "github"
	}
	publicURL := os.Getenv("PUBLIC_URL")
	if publicURL == "" {
		publicURL = "http://localhost:3000"
	}
	return &Config{
		Env:           os.Getenv("APP_ENV"),
		Addr:          addr,
		PublicURL:     strings.TrimSuffix(publicURL, "/"),
		OAuthProvider: provider,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Appwrite: Appwrite{
			Endpoint:           strings.TrimSuffix(os.Getenv("APPWRITE_ENDPOINT"), "/"),
			ProjectID:          os.Getenv("APPWRITE_PROJECT_ID"),
			APIKey:             os.Getenv("APPWRITE_API_KEY_SECRET"),
			DatabaseID:         os.Getenv("APPWRITE_DATABASE_ID"),
			OrdersCollectionID: os.Getenv("APPWRITE_COLLECTION_ORDERS"),
		},
		Paths: DefaultPaths(),
	}
}

// fileConfig is the YAML overlay. Only non-empty values override.
type fileConfig struct {
	Addr          string `yaml:"addr"`
	PublicURL     string `yaml:"public_url"`
	OAuthProvider string `yaml:"oauth_provider"`
	Paths         *Paths `yaml:"paths"`
}

// Load applies .env (best effort), the environment and then CONFIG_FILE if set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Addr != "" {
		c.Addr = fc.Addr
	}
	if fc.PublicURL != "" {
		c.PublicURL = strings.TrimSuffix(fc.PublicURL, "/")
	}
	if fc.OAuthProvider != "" {
		c.OAuthProvider = fc.OAuthProvider
	}
	if p := fc.Paths; p != nil {
		if p.Home != "" {
			c.Paths.Home = p.Home
		}
		if p.Login != "" {
			c.Paths.Login = p.Login
		}
		if p.Signup != "" {
			c.Paths.Signup = p.Signup
		}
		if p.Profile != "" {
			c.Paths.Profile = p.Profile
		}
		if len(p.Protected) > 0 {
			c.Paths.Protected = p.Protected
		}
	}
	return nil
}
