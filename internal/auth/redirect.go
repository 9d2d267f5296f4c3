package auth

import (
	"errors"
	"net/http"
	"net/url"
)

// OAuthStart sends the browser to the OAuth2 provider. The provider returns
// to OAuthCallback on success and to the signup page on failure.
func (h *Handler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	success := h.publicURL + "/api/auth/oauth"
	failure := h.publicURL + h.paths.Signup

	target, err := h.svc.OAuthURL(r.Context(), h.oauthProvider, success, failure)
	if err != nil {
		h.fail(w, "oauth", err, http.StatusUnauthorized, "")
		return
	}
	h.metrics.AuthRequest("oauth", "redirect")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// OAuthCallback exchanges ?userId=&secret= for a session cookie.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	issued, err := h.svc.ExchangeOAuth(r.Context(), q.Get("userId"), q.Get("secret"))
	if err != nil {
		h.logProviderFailure("oauth_callback", err)
		h.metrics.AuthRequest("oauth_callback", outcome(err))
		target := h.paths.Signup
		if !errors.Is(err, ErrMissingOAuthToken) {
			target += "?" + url.Values{"error": {"oauth_failed"}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	h.cookies.Set(w, issued.Secret, issued.ExpiresAt)
	h.metrics.AuthRequest("oauth_callback", "ok")
	http.Redirect(w, r, h.paths.Profile, http.StatusSeeOther)
}

// SignOut is the form-flow logout. The cookie is removed even when the
// provider call fails.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := ReadSessionCookie(r); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			h.logProviderFailure("signout", err)
			h.metrics.AuthRequest("signout", outcome(err))
		} else {
			h.metrics.AuthRequest("signout", "ok")
		}
	}
	h.cookies.Delete(w)
	http.Redirect(w, r, h.paths.Login, http.StatusSeeOther)
}
