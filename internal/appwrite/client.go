// Package appwrite is a small REST client for the Appwrite identity provider.
//
// Two kinds of client are built by the factory functions: an admin client bound
// to the service API key, and a session client bound to one user's session
// secret. Construction never touches the network; missing configuration is
// reported by the first operation.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
)

const (
	maxResponseSize = 4 << 20
	tracerName      = "github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
)

// Client issues requests on behalf of either the service or a single session.
type Client struct {
	endpoint string
	project  string
	key      string
	session  string
	cfgErr   error
	http     *http.Client
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func newClient(cfg config.Appwrite, opts []Option) *Client {
	c := &Client{
		endpoint: cfg.Endpoint,
		project:  cfg.ProjectID,
		http:     &http.Client{Timeout: 15 * time.Second},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAdminClient returns a client authenticated with the service API key.
func NewAdminClient(cfg config.Appwrite, opts ...Option) *Client {
	c := newClient(cfg, opts)
	c.key = cfg.APIKey
	c.cfgErr = cfg.RequireAdmin()
	return c
}

// NewSessionClient returns a client acting as the owner of token. An empty
// token yields an anonymous client.
func NewSessionClient(cfg config.Appwrite, token string, opts ...Option) *Client {
	c := newClient(cfg, opts)
	c.session = token
	c.cfgErr = cfg.RequireSession()
	return c
}

// Anonymous reports whether no session is bound.
func (c *Client) Anonymous() bool { return c.session == "" && c.key == "" }

func (c *Client) requireSession() error {
	if c.session == "" {
		return ErrNoSession
	}
	return nil
}

// CreateEmailPasswordSession creates a session for the given credentials.
func (c *Client) CreateEmailPasswordSession(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "CreateEmailPasswordSession", http.MethodPost, "/account/sessions/email", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession exchanges a token (userId + secret) for a session.
func (c *Client) CreateSession(ctx context.Context, userID, secret string) (*Session, error) {
	var out Session
	body := map[string]string{"userId": userID, "secret": secret}
	if err := c.do(ctx, "CreateSession", http.MethodPost, "/account/sessions/token", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccount registers a new user.
func (c *Client) CreateAccount(ctx context.Context, userID, email, password, name string) (*User, error) {
	var out User
	body := map[string]string{"userId": userID, "email": email, "password": password}
	if name != "" {
		body["name"] = name
	}
	if err := c.do(ctx, "CreateAccount", http.MethodPost, "/account", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches the user owning the bound session.
func (c *Client) GetAccount(ctx context.Context) (*User, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out User
	if err := c.do(ctx, "GetAccount", http.MethodGet, "/account", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession ends a session; sessionID may be "current".
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	return c.do(ctx, "DeleteSession", http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, nil, nil)
}

// UpdateSession extends a session; sessionID may be "current".
func (c *Client) UpdateSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out Session
	if err := c.do(ctx, "UpdateSession", http.MethodPatch, "/account/sessions/"+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJWT issues a short-lived JWT for the bound session.
func (c *Client) CreateJWT(ctx context.Context) (*JWT, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out JWT
	if err := c.do(ctx, "CreateJWT", http.MethodPost, "/account/jwts", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments lists the documents of a collection visible to the caller.
func (c *Client) ListDocuments(ctx context.Context, databaseID, collectionID string) (*DocumentList, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out DocumentList
	path := fmt.Sprintf("/databases/%s/collections/%s/documents", url.PathEscape(databaseID), url.PathEscape(collectionID))
	if err := c.do(ctx, "ListDocuments", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOAuth2Token returns the provider authorization URL the browser should
// be sent to. The API answers with a redirect whose Location is that URL.
func (c *Client) CreateOAuth2Token(ctx context.Context, provider, success, failure string) (string, error) {
	q := url.Values{}
	q.Set("success", success)
	q.Set("failure", failure)
	q.Set("project", c.project)

	var location string
	err := c.trace(ctx, "CreateOAuth2Token", http.MethodGet, func(ctx context.Context) error {
		if c.cfgErr != nil {
			return c.cfgErr
		}
		req, err := c.newRequest(ctx, http.MethodGet, "/account/tokens/oauth2/"+url.PathEscape(provider), q, nil)
		if err != nil {
			return err
		}
		hc := *c.http
		hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		resp, err := hc.Do(req)
		if err != nil {
			return &TransportError{Op: "CreateOAuth2Token", Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return decodeError("CreateOAuth2Token", resp)
		}
		location = resp.Header.Get("Location")
		if location == "" {
			return &TransportError{Op: "CreateOAuth2Token", Err: errors.New("redirect without location")}
		}
		return nil
	})
	return location, err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.trace(ctx, op, method, func(ctx context.Context) error {
		if c.cfgErr != nil {
			return c.cfgErr
		}
		req, err := c.newRequest(ctx, method, path, query, body)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return decodeError(op, resp)
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	})
}

func (c *Client) trace(ctx context.Context, op, method string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "appwrite."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.Bool("appwrite.session", c.session != ""),
		))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ae, ok := AsError(err); ok {
			span.SetAttributes(attribute.Int("appwrite.code", ae.Code), attribute.String("appwrite.type", ae.Type))
		}
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Appwrite-Project", c.project)
	if c.key != "" {
		req.Header.Set("X-Appwrite-Key", c.key)
	}
	if c.session != "" {
		req.Header.Set("X-Appwrite-Session", c.session)
	}
	return req, nil
}

func decodeError(op string, resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read error body: %w", err)}
	}
	var ae Error
	if err := json.Unmarshal(raw, &ae); err != nil || ae.Message == "" {
		snippet := string(raw)
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)}
	}
	if ae.Code == 0 {
		ae.Code = resp.StatusCode
	}
	return &ae
}
