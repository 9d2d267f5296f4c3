// Package entity holds the auth types shared by the server, the store and the
// HTTP client.
package entity

// User is the projection of the provider account returned to clients.
type User struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	CreatedAt         string         `json:"$createdAt"`
	UpdatedAt         string         `json:"$updatedAt"`
	Registration      string         `json:"registration"`
	AccessedAt        string         `json:"accessedAt"`
	Labels            []string       `json:"labels"`
	Phone             string         `json:"phone"`
	EmailVerification bool           `json:"emailVerification"`
	PhoneVerification bool           `json:"phoneVerification"`
	MFA               bool           `json:"mfa"`
	Prefs             map[string]any `json:"prefs"`
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the signup request body.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what login, signup and refresh report about the new session.
type Session struct {
	ID     string `json:"$id,omitempty"`
	UserID string `json:"userId,omitempty"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

// SignupResult is the soft-failure envelope returned by signup.
type SignupResult struct {
	Success bool     `json:"success"`
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// UserResult is returned by the current-user endpoint. User is nil on a soft failure.
type UserResult struct {
	User  *User  `json:"user"`
	Error string `json:"error,omitempty"`
}

// OrderList wraps the raw order documents.
type OrderList struct {
	Orders []map[string]any `json:"orders"`
	Total  int              `json:"total"`
}

// JWT is a short-lived provider token plus its decoded expiry.
type JWT struct {
	JWT    string `json:"jwt"`
	Expire string `json:"expire"`
}

// ErrorBody is the body of every hard error response.
type ErrorBody struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}
