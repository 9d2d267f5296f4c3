package appwrite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the provider session record. Secret is only populated when the
// session was created through an admin client.
type Session struct {
	ID        string `json:"$id"`
	CreatedAt string `json:"$createdAt,omitempty"`
	UpdatedAt string `json:"$updatedAt,omitempty"`
	UserID    string `json:"userId"`
	Expire    string `json:"expire"`
	Provider  string `json:"provider,omitempty"`
	Current   bool   `json:"current"`
	Secret    string `json:"secret"`
}

// ExpireTime parses the ISO-8601 expiry.
func (s *Session) ExpireTime() (time.Time, error) {
	return ParseTime(s.Expire)
}

// User is the account record returned for "self".
type User struct {
	ID                string         `json:"$id"`
	CreatedAt         string         `json:"$createdAt"`
	UpdatedAt         string         `json:"$updatedAt"`
	Name              string         `json:"name"`
	Registration      string         `json:"registration"`
	Status            bool           `json:"status"`
	Labels            []string       `json:"labels"`
	PasswordUpdate    string         `json:"passwordUpdate"`
	Email             string         `json:"email"`
	Phone             string         `json:"phone"`
	EmailVerification bool           `json:"emailVerification"`
	PhoneVerification bool           `json:"phoneVerification"`
	MFA               bool           `json:"mfa"`
	Prefs             map[string]any `json:"prefs"`
	AccessedAt        string         `json:"accessedAt"`
}

// DocumentList is a page of collection documents. Documents are passed through undecoded.
type DocumentList struct {
	Total     int               `json:"total"`
	Documents []json.RawMessage `json:"documents"`
}

// JWT is a short-lived token for client-side provider calls.
type JWT struct {
	JWT string `json:"jwt"`
}

// ExpiresAt reads the exp claim. The signature is not checked: the token is
// signed with a provider secret this service never holds.
func (j *JWT) ExpiresAt() (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(j.JWT, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse jwt: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("jwt exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("jwt has no exp claim")
	}
	return exp.Time, nil
}

// ParseTime parses provider timestamps such as "2024-07-22T10:00:00.000+00:00".
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q: %w", s, err)
	}
	return t, nil
}
