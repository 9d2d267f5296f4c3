package auth

import (
	"math"
	"net/http"
	"time"
)

// SessionCookie carries the opaque provider session secret.
const SessionCookie = "my-appwrite-session"

// MaxAgeUntil returns the whole seconds from now until expire, rounded up,
// never less than 1.
func MaxAgeUntil(expire, now time.Time) int {
	secs := math.Ceil(expire.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	if secs > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(secs)
}

// Cookies writes the session cookie. Only the auth handlers write it.
type Cookies struct {
	Secure bool
	Now    func() time.Time
}

// NewCookies returns a writer that marks cookies Secure when secure is set.
func NewCookies(secure bool) Cookies {
	return Cookies{Secure: secure, Now: time.Now}
}

func (c Cookies) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Cookies) base() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Set writes secret with a lifetime ending at expire.
func (c Cookies) Set(w http.ResponseWriter, secret string, expire time.Time) {
	ck := c.base()
	ck.Value = secret
	ck.MaxAge = MaxAgeUntil(expire, c.now())
	http.SetCookie(w, ck)
}

// Delete expires the cookie immediately.
func (c Cookies) Delete(w http.ResponseWriter) {
	ck := c.base()
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// ReadSessionCookie returns the session secret, or "" when absent.
func ReadSessionCookie(r *http.Request) string {
	ck, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}
