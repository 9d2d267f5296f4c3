package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
)

// DirectAPI lets a client store call the auth service in-process. It holds
// the session token the way a browser holds the cookie: login replaces it,
// logout clears it.
type DirectAPI struct {
	svc *Service

	mu     sync.Mutex
	token  string
	expire time.Time
}

func NewDirectAPI(svc *Service, token string) *DirectAPI {
	return &DirectAPI{svc: svc, token: token}
}

func (d *DirectAPI) Login(ctx context.Context, creds entity.Credentials) (*entity.Session, error) {
	issued, err := d.svc.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.token, d.expire = issued.Secret, issued.ExpiresAt
	d.mu.Unlock()
	s := issued.Session
	return &s, nil
}

func (d *DirectAPI) Logout(ctx context.Context) error {
	if err := d.svc.Logout(ctx, d.Token()); err != nil {
		return err
	}
	d.mu.Lock()
	d.token, d.expire = "", time.Time{}
	d.mu.Unlock()
	return nil
}

// CurrentUser mirrors GET /api/auth/user: a missing session and provider
// rejections come back as a result with Error set rather than as an error.
func (d *DirectAPI) CurrentUser(ctx context.Context) (*entity.UserResult, error) {
	u, err := d.svc.CurrentUser(ctx, d.Token())
	if err != nil {
		if errors.Is(err, ErrNoSessionCookie) || errors.Is(err, appwrite.ErrNoSession) {
			return &entity.UserResult{Error: msgNoSession}, nil
		}
		if ae, ok := appwrite.AsError(err); ok && ae.Code < http.StatusInternalServerError {
			return &entity.UserResult{Error: msgUnexpected + ": " + sanitize(ae.Message)}, nil
		}
		return nil, err
	}
	return &entity.UserResult{User: u}, nil
}

// Token returns the bound session secret.
func (d *DirectAPI) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// Session returns the secret and expiry set by the last successful login.
// expire is zero when the token was bound at construction.
func (d *DirectAPI) Session() (token string, expire time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token, d.expire
}
