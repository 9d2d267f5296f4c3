package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/pkg/utilities"
)

var (
	ErrNoSessionCookie    = errors.New("no session cookie")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrMissingOAuthToken  = errors.New("oauth callback without userId or secret")
)

// Issued is a session created by login, signup, refresh or OAuth exchange.
type Issued struct {
	entity.Session
	ExpiresAt time.Time
}

// Service performs the provider calls behind the auth endpoints. Each method
// makes exactly the provider calls it names and returns typed errors; HTTP
// rendering is left to Handler.
type Service struct {
	cfg    config.Appwrite
	opts   []appwrite.Option
	logger *zap.SugaredLogger
	newID  func() string
}

func NewService(cfg config.Appwrite, logger *zap.SugaredLogger, opts ...appwrite.Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{cfg: cfg, opts: opts, logger: logger, newID: utilities.NewKSUID}
}

func (s *Service) admin() *appwrite.Client {
	return appwrite.NewAdminClient(s.cfg, s.opts...)
}

func (s *Service) session(token string) (*appwrite.Client, error) {
	if token == "" {
		return nil, ErrNoSessionCookie
	}
	return appwrite.NewSessionClient(s.cfg, token, s.opts...), nil
}

// Login creates a session from email and password.
func (s *Service) Login(ctx context.Context, creds entity.Credentials) (*Issued, error) {
	sess, err := s.admin().CreateEmailPasswordSession(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	return s.issued(sess, ""), nil
}

// Signup registers a user and logs them in.
func (s *Service) Signup(ctx context.Context, req entity.SignupRequest) (*entity.User, *Issued, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, nil, ErrMissingCredentials
	}
	admin := s.admin()
	u, err := admin.CreateAccount(ctx, s.newID(), req.Email, req.Password, req.Name)
	if err != nil {
		return nil, nil, err
	}
	sess, err := admin.CreateEmailPasswordSession(ctx, req.Email, req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("login after signup: %w", err)
	}
	return project(u), s.issued(sess, ""), nil
}

// Logout deletes the current session of token.
func (s *Service) Logout(ctx context.Context, token string) error {
	c, err := s.session(token)
	if err != nil {
		return err
	}
	return c.DeleteSession(ctx, "current")
}

// CurrentUser fetches the projected user that owns token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*entity.User, error) {
	c, err := s.session(token)
	if err != nil {
		return nil, err
	}
	u, err := c.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	return project(u), nil
}

// ListOrders lists the order documents visible to token.
func (s *Service) ListOrders(ctx context.Context, token string) (*entity.OrderList, error) {
	c, err := s.session(token)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.RequireOrders(); err != nil {
		return nil, err
	}
	list, err := c.ListDocuments(ctx, s.cfg.DatabaseID, s.cfg.OrdersCollectionID)
	if err != nil {
		return nil, err
	}
	out := &entity.OrderList{Orders: make([]map[string]any, 0, len(list.Documents)), Total: list.Total}
	for i, raw := range list.Documents {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &appwrite.TransportError{Op: "ListDocuments", Err: fmt.Errorf("document %d: %w", i, err)}
		}
		out.Orders = append(out.Orders, doc)
	}
	return out, nil
}

// RefreshSession extends the current session. The secret does not change.
func (s *Service) RefreshSession(ctx context.Context, token string) (*Issued, error) {
	c, err := s.session(token)
	if err != nil {
		return nil, err
	}
	sess, err := c.UpdateSession(ctx, "current")
	if err != nil {
		return nil, err
	}
	return s.issued(sess, token), nil
}

// CreateJWT issues a short-lived JWT for token.
func (s *Service) CreateJWT(ctx context.Context, token string) (*entity.JWT, error) {
	c, err := s.session(token)
	if err != nil {
		return nil, err
	}
	j, err := c.CreateJWT(ctx)
	if err != nil {
		return nil, err
	}
	out := &entity.JWT{JWT: j.JWT}
	if exp, err := j.ExpiresAt(); err == nil {
		out.Expire = exp.UTC().Format(time.RFC3339)
	} else {
		s.logger.Warnw("jwt without readable expiry", "err", err)
	}
	return out, nil
}

// OAuthURL returns the provider URL that starts an OAuth2 login.
func (s *Service) OAuthURL(ctx context.Context, provider, success, failure string) (string, error) {
	return s.admin().CreateOAuth2Token(ctx, provider, success, failure)
}

// ExchangeOAuth turns the token from an OAuth2 callback into a session.
func (s *Service) ExchangeOAuth(ctx context.Context, userID, secret string) (*Issued, error) {
	if userID == "" || secret == "" {
		return nil, ErrMissingOAuthToken
	}
	sess, err := s.admin().CreateSession(ctx, userID, secret)
	if err != nil {
		return nil, err
	}
	return s.issued(sess, ""), nil
}

// issued converts a provider session. fallbackSecret is used when the
// provider omits the secret, as it does for session-client calls.
func (s *Service) issued(sess *appwrite.Session, fallbackSecret string) *Issued {
	secret := sess.Secret
	if secret == "" {
		secret = fallbackSecret
	}
	out := &Issued{Session: entity.Session{
		ID:     sess.ID,
		UserID: sess.UserID,
		Secret: secret,
		Expire: sess.Expire,
	}}
	exp, err := sess.ExpireTime()
	if err != nil {
		// zero time gives the cookie the minimum lifetime
		s.logger.Warnw("session expiry not parseable", "expire", sess.Expire, "err", err)
		return out
	}
	out.ExpiresAt = exp
	return out
}

func project(u *appwrite.User) *entity.User {
	labels := u.Labels
	if labels == nil {
		labels = []string{}
	}
	prefs := u.Prefs
	if prefs == nil {
		prefs = map[string]any{}
	}
	return &entity.User{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
		Registration:      u.Registration,
		AccessedAt:        u.AccessedAt,
		Labels:            labels,
		Phone:             u.Phone,
		EmailVerification: u.EmailVerification,
		PhoneVerification: u.PhoneVerification,
		MFA:               u.MFA,
		Prefs:             prefs,
	}
}
