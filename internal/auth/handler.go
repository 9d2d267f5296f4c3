package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
)

const (
	msgNoSession      = "Unauthorized: No session cookie found"
	msgOrdersNoAuth   = "Access Denied: Authorization Required"
	msgOrdersDenied   = "The current user is not authorized to perform the requested action."
	msgUnexpected     = "An unexpected error occurred"
	msgInvalidPayload = "Invalid request body"
	msgMissingCreds   = "Email and password are required"
	maxMessageRunes   = 200
)

// Handler exposes the /api/auth endpoints.
type Handler struct {
	svc           *Service
	cookies       Cookies
	logger        *zap.SugaredLogger
	metrics       *metrics.Metrics
	paths         config.Paths
	publicURL     string
	oauthProvider string
}

func NewHandler(svc *Service, cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		svc:           svc,
		cookies:       NewCookies(cfg.Production()),
		logger:        logger,
		metrics:       m,
		paths:         cfg.Paths,
		publicURL:     cfg.PublicURL,
		oauthProvider: cfg.OAuthProvider,
	}
}

// Cookies returns the writer used for the session cookie.
func (h *Handler) Cookies() Cookies { return h.cookies }

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req entity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.metrics.AuthRequest("login", "invalid")
		h.writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	issued, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.fail(w, "login", err, http.StatusUnauthorized, "")
		return
	}
	h.cookies.Set(w, issued.Secret, issued.ExpiresAt)
	h.metrics.AuthRequest("login", "ok")
	h.writeJSON(w, http.StatusOK, issued.Session)
}

// Signup never answers with an error status for provider failures; the
// outcome is reported in the body.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req entity.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		h.metrics.AuthRequest("signup", "invalid")
		h.writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	u, issued, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		msg := msgUnexpected
		switch {
		case errors.Is(err, ErrMissingCredentials):
			msg = msgMissingCreds
			h.metrics.AuthRequest("signup", "invalid")
		case errors.Is(err, config.ErrMisconfigured):
			h.logger.Errorw("signup misconfigured", "err", err)
			msg = err.Error()
			h.metrics.AuthRequest("signup", "misconfigured")
		default:
			if ae, ok := appwrite.AsError(err); ok {
				msg = sanitize(ae.Message)
			}
			h.logProviderFailure("signup", err)
			h.metrics.AuthRequest("signup", outcome(err))
		}
		h.writeJSON(w, http.StatusOK, entity.SignupResult{Success: false, Error: msg})
		return
	}
	h.cookies.Set(w, issued.Secret, issued.ExpiresAt)
	h.metrics.AuthRequest("signup", "ok")
	h.writeJSON(w, http.StatusOK, entity.SignupResult{Success: true, User: u, Session: &issued.Session})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), ReadSessionCookie(r)); err != nil {
		h.fail(w, "logout", err, http.StatusUnauthorized, "")
		return
	}
	h.cookies.Delete(w)
	h.metrics.AuthRequest("logout", "ok")
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CurrentUser reports provider failures as {user:null, error} with status 200.
// Missing cookies, configuration and transport failures are hard errors.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), ReadSessionCookie(r))
	if err != nil {
		if ae, ok := appwrite.AsError(err); ok && ae.Code < http.StatusInternalServerError {
			h.logProviderFailure("user", err)
			h.metrics.AuthRequest("user", "rejected")
			h.writeJSON(w, http.StatusOK, entity.UserResult{Error: msgUnexpected + ": " + sanitize(ae.Message)})
			return
		}
		h.fail(w, "user", err, http.StatusUnauthorized, "")
		return
	}
	h.metrics.AuthRequest("user", "ok")
	h.writeJSON(w, http.StatusOK, entity.UserResult{User: u})
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), ReadSessionCookie(r))
	if err != nil {
		h.fail(w, "orders", err, http.StatusForbidden, msgOrdersDenied)
		return
	}
	h.metrics.AuthRequest("orders", "ok")
	h.writeJSON(w, http.StatusOK, orders)
}

// Refresh extends the current session and re-issues the cookie with the new expiry.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ReadSessionCookie(r)
	issued, err := h.svc.RefreshSession(r.Context(), token)
	if err != nil {
		h.fail(w, "refresh", err, http.StatusUnauthorized, "")
		return
	}
	h.cookies.Set(w, issued.Secret, issued.ExpiresAt)
	h.metrics.AuthRequest("refresh", "ok")
	h.writeJSON(w, http.StatusOK, issued.Session)
}

func (h *Handler) JWT(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.CreateJWT(r.Context(), ReadSessionCookie(r))
	if err != nil {
		h.fail(w, "jwt", err, http.StatusUnauthorized, "")
		return
	}
	h.metrics.AuthRequest("jwt", "ok")
	h.writeJSON(w, http.StatusOK, j)
}

// fail maps err onto the error taxonomy. Provider rejections get
// rejectStatus and either rejectMsg or the sanitized provider message.
func (h *Handler) fail(w http.ResponseWriter, endpoint string, err error, rejectStatus int, rejectMsg string) {
	switch {
	case errors.Is(err, ErrNoSessionCookie), errors.Is(err, appwrite.ErrNoSession):
		h.metrics.AuthRequest(endpoint, "unauthenticated")
		msg := msgNoSession
		if endpoint == "orders" {
			msg = msgOrdersNoAuth
		}
		h.writeError(w, http.StatusUnauthorized, msg)
		return
	case errors.Is(err, config.ErrMisconfigured):
		h.logger.Errorw("auth endpoint misconfigured", "endpoint", endpoint, "err", err)
		h.metrics.AuthRequest(endpoint, "misconfigured")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logProviderFailure(endpoint, err)
	h.metrics.AuthRequest(endpoint, outcome(err))
	if ae, ok := appwrite.AsError(err); ok && ae.Code < http.StatusInternalServerError {
		msg := rejectMsg
		if msg == "" {
			msg = sanitize(ae.Message)
		}
		h.writeError(w, rejectStatus, msg)
		return
	}
	h.writeError(w, http.StatusInternalServerError, msgUnexpected)
}

func (h *Handler) logProviderFailure(endpoint string, err error) {
	if ae, ok := appwrite.AsError(err); ok {
		h.logger.Warnw("provider rejected request",
			"endpoint", endpoint, "status", ae.Code, "type", ae.Type, "err", ae.Message)
		return
	}
	var te *appwrite.TransportError
	if errors.As(err, &te) {
		h.logger.Errorw("provider unreachable", "endpoint", endpoint, "op", te.Op, "err", te.Err)
		return
	}
	h.logger.Errorw("auth request failed", "endpoint", endpoint, "err", err)
}

func outcome(err error) string {
	if ae, ok := appwrite.AsError(err); ok && ae.Code < http.StatusInternalServerError {
		return "rejected"
	}
	return "error"
}

// sanitize strips control characters and caps the length of a provider
// message before it is shown to a client.
func sanitize(msg string) string {
	msg = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, msg)
	msg = strings.TrimSpace(msg)
	if runes := []rune(msg); len(runes) > maxMessageRunes {
		msg = string(runes[:maxMessageRunes]) + "…"
	}
	if msg == "" {
		return msgUnexpected
	}
	return msg
}

// UserMessage renders err as text that can be shown on a page.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return msgMissingCreds
	case errors.Is(err, ErrNoSessionCookie), errors.Is(err, appwrite.ErrNoSession):
		return msgNoSession
	}
	if ae, ok := appwrite.AsError(err); ok && ae.Code < http.StatusInternalServerError {
		return sanitize(ae.Message)
	}
	return msgUnexpected
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, entity.ErrorBody{StatusCode: status, StatusMessage: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
