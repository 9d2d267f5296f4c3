// Package apiclient calls the /api/auth endpoints over HTTP. A cookie jar
// plays the part of the browser, so the session cookie never leaves it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
)

const maxResponseSize = 1 << 20

// APIError is a hard error answered by the server.
type APIError struct {
	StatusCode    int
	StatusMessage string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.StatusMessage)
}

// IsUnauthenticated reports whether err is a 401 from the server.
func IsUnauthenticated(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

type Client struct {
	base *url.URL
	jar  http.CookieJar
	http *http.Client
}

type Option func(*Client)

// WithTimeout sets the per-request timeout. Default 15s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: base,
		jar:  jar,
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SessionToken returns the session cookie held in the jar, or "".
func (c *Client) SessionToken() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == auth.SessionCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) Login(ctx context.Context, creds entity.Credentials) (*entity.Session, error) {
	var out entity.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Signup(ctx context.Context, req entity.SignupRequest) (*entity.SignupResult, error) {
	var out entity.SignupResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// CurrentUser returns the soft-failure envelope as is; only hard errors are errors.
// CurrentUser fetches the signed-in user. A 401 means the server has no
// session for the cookie and comes back as a result with Error set; any other
// failure is an error.
func (c *Client) CurrentUser(ctx context.Context) (*entity.UserResult, error) {
	var out entity.UserResult
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, &out); err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized {
			return &entity.UserResult{Error: ae.StatusMessage}, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) Orders(ctx context.Context) (*entity.OrderList, error) {
	var out entity.OrderList
	if err := c.do(ctx, http.MethodGet, "/api/auth/orders", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context) (*entity.Session, error) {
	var out entity.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JWT(ctx context.Context) (*entity.JWT, error) {
	var out entity.JWT
	if err := c.do(ctx, http.MethodGet, "/api/auth/jwt", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var eb entity.ErrorBody
		if json.Unmarshal(raw, &eb) != nil || eb.StatusMessage == "" {
			eb.StatusMessage = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, StatusMessage: eb.StatusMessage}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
