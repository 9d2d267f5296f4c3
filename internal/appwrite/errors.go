package appwrite

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession is returned by identity-requiring calls on an anonymous client.
var ErrNoSession = errors.New("appwrite: no session bound to client")

// Error is a rejection reported by the Appwrite API.
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("appwrite: %s (%d)", e.Message, e.Code)
	}
	return fmt.Sprintf("appwrite: %s (%d %s)", e.Message, e.Code, e.Type)
}

// Unauthorized reports a missing, expired or invalid session or credentials.
func (e *Error) Unauthorized() bool { return e.Code == http.StatusUnauthorized }

// Forbidden reports an authorization failure on an otherwise valid identity.
func (e *Error) Forbidden() bool { return e.Code == http.StatusForbidden }

// TransportError covers network failures and responses that could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("appwrite %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// AsError extracts a provider rejection from err.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
