// Package appwritetest provides an in-memory Appwrite API for tests.
//
// Usage:
//
//	fake := appwritetest.New(t)
//	fake.AddUser("a@b.com", "secret", "Ann")
//	client := appwrite.NewAdminClient(fake.Config())
package appwritetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
)

const (
	ProjectID = "test-project"
	APIKey    = "test-key"
	Database  = "shop"
	Orders    = "orders"

	timeLayout = "2006-01-02T15:04:05.000-07:00"
)

type user struct {
	appwrite.User
	password string
}

type session struct {
	id     string
	userID string
	expire time.Time
}

// Server is a thread-safe fake of the account, database and OAuth2 APIs.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[string]*user // by email
	sessions   map[string]*session
	oauth      map[string]string // secret -> user id
	documents  []map[string]any
	failures   map[string][]appwrite.Error
	calls      map[string]int
	seq        int
	secrets    []string
	denyOrders bool
	ttl        time.Duration
	clock      func() time.Time
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		users:      map[string]*user{},
		sessions:   map[string]*session{},
		oauth:      map[string]string{},
		failures:   map[string][]appwrite.Error{},
		calls:      map[string]int{},
		ttl:        time.Hour,
		clock:      time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /account/sessions/email", s.createEmailSession)
	mux.HandleFunc("POST /account/sessions/token", s.createTokenSession)
	mux.HandleFunc("DELETE /account/sessions/{id}", s.deleteSession)
	mux.HandleFunc("PATCH /account/sessions/{id}", s.updateSession)
	mux.HandleFunc("POST /account", s.createAccount)
	mux.HandleFunc("GET /account", s.getAccount)
	mux.HandleFunc("POST /account/jwts", s.createJWT)
	mux.HandleFunc("GET /account/tokens/oauth2/{provider}", s.oauth2)
	mux.HandleFunc("GET /databases/{db}/collections/{coll}/documents", s.listDocuments)
	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// Config returns settings pointing at the fake.
func (s *Server) Config() config.Appwrite {
	return config.Appwrite{
		Endpoint:           s.URL,
		ProjectID:          ProjectID,
		APIKey:             APIKey,
		DatabaseID:         Database,
		OrdersCollectionID: Orders,
	}
}

// SetClock replaces the clock used for session expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = now
}

// SetSessionTTL sets the lifetime of new and renewed sessions. Default one hour.
func (s *Server) SetSessionTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = d
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, password, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, name, "").ID
}

// AddOrders appends documents to the orders collection.
func (s *Server) AddOrders(docs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, docs...)
}

// DenyOrders makes order listing fail with 401 user_unauthorized.
func (s *Server) DenyOrders(deny bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denyOrders = deny
}

// NextSecrets queues the secrets handed out by the next session creations.
func (s *Server) NextSecrets(secrets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = append(s.secrets, secrets...)
}

// IssueOAuthToken returns a token secret that CreateSession will accept for email.
func (s *Server) IssueOAuthToken(email string) (userID, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		u = s.addUserLocked(email, "", "", "")
	}
	s.seq++
	secret = fmt.Sprintf("oauth-%d", s.seq)
	s.oauth[secret] = u.ID
	return u.ID, secret
}

// FailNext makes the next request matching route ("METHOD /path") fail with e.
func (s *Server) FailNext(route string, e appwrite.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], e)
}

// Calls returns how many requests hit route ("METHOD /path").
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// SessionActive reports whether secret names a live session.
func (s *Server) SessionActive(secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[secret]
	return ok && sess.expire.After(s.clock())
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[route]++
		var injected *appwrite.Error
		if q := s.failures[route]; len(q) > 0 {
			injected = &q[0]
			s.failures[route] = q[1:]
		}
		s.mu.Unlock()

		if r.Header.Get("X-Appwrite-Project") != ProjectID {
			writeError(w, http.StatusNotFound, "project_not_found", "Project with the requested ID could not be found.")
			return
		}
		if injected != nil {
			writeError(w, injected.Code, injected.Type, injected.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) addUserLocked(email, password, name, id string) *user {
	s.seq++
	if id == "" {
		id = fmt.Sprintf("user-%d", s.seq)
	}
	now := s.clock().UTC().Format(timeLayout)
	u := &user{
		User: appwrite.User{
			ID: id, CreatedAt: now, UpdatedAt: now, Name: name, Email: email,
			Registration: now, AccessedAt: now, Status: true,
			Labels: []string{}, Prefs: map[string]any{},
		},
		password: password,
	}
	s.users[email] = u
	return u
}

func (s *Server) userByID(id string) *user {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Server) newSessionLocked(userID string) (string, *session) {
	s.seq++
	secret := fmt.Sprintf("secret-%d", s.seq)
	if len(s.secrets) > 0 {
		secret, s.secrets = s.secrets[0], s.secrets[1:]
	}
	sess := &session{id: fmt.Sprintf("session-%d", s.seq), userID: userID, expire: s.clock().Add(s.ttl)}
	s.sessions[secret] = sess
	return secret, sess
}

// caller resolves the session header; admin requests carry the API key instead.
func (s *Server) caller(r *http.Request) (string, *session, bool) {
	secret := r.Header.Get("X-Appwrite-Session")
	sess, ok := s.sessions[secret]
	if !ok || !sess.expire.After(s.clock()) {
		return "", nil, false
	}
	return secret, sess, true
}

func (s *Server) requireKey(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("X-Appwrite-Key") != APIKey {
		writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (sessions.write)")
		return false
	}
	return true
}

func (s *Server) createEmailSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireKey(w, r) {
		return
	}
	var body struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", "Invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[body.Email]
	if !ok || u.password == "" || u.password != body.Password {
		writeError(w, http.StatusUnauthorized, "user_invalid_credentials", "Invalid credentials. Please check the email and password.")
		return
	}
	secret, sess := s.newSessionLocked(u.ID)
	writeJSON(w, http.StatusCreated, s.sessionJSON(secret, sess))
}

func (s *Server) createTokenSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireKey(w, r) {
		return
	}
	var body struct {
		UserID string `json:"userId"`
		Secret string `json:"secret"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if uid, ok := s.oauth[body.Secret]; !ok || uid != body.UserID {
		writeError(w, http.StatusUnauthorized, "user_invalid_token", "Invalid token passed in the request.")
		return
	}
	delete(s.oauth, body.Secret)
	secret, sess := s.newSessionLocked(body.UserID)
	writeJSON(w, http.StatusCreated, s.sessionJSON(secret, sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, _, ok := s.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_unauthorized", "The current user is not authorized to perform the requested action.")
		return
	}
	delete(s.sessions, secret)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sess, ok := s.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_unauthorized", "The current user is not authorized to perform the requested action.")
		return
	}
	sess.expire = s.clock().Add(s.ttl)
	writeJSON(w, http.StatusOK, s.sessionJSON("", sess))
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireKey(w, r) {
		return
	}
	var body struct {
		UserID   string `json:"userId"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", "Param \"userId\" is not optional.")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", "Invalid `password` param: Password must be between 8 and 256 characters long.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.users[body.Email]; taken {
		writeError(w, http.StatusConflict, "user_already_exists", "A user with the same id, email, or phone already exists in this project.")
		return
	}
	u := s.addUserLocked(body.Email, body.Password, body.Name, body.UserID)
	writeJSON(w, http.StatusCreated, u.User)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sess, ok := s.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (account)")
		return
	}
	u := s.userByID(sess.userID)
	if u == nil {
		writeError(w, http.StatusNotFound, "user_not_found", "User with the requested ID could not be found.")
		return
	}
	writeJSON(w, http.StatusOK, u.User)
}

func (s *Server) createJWT(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, sess, ok := s.caller(r)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (account)")
		return
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":    sess.userID,
		"sessionId": sess.id,
		"exp":       s.clock().Add(15 * time.Minute).Unix(),
	}).SignedString([]byte("fake-provider-key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "general_unknown", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"jwt": token})
}

func (s *Server) oauth2(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("provider", r.PathValue("provider"))
	q.Set("success", r.URL.Query().Get("success"))
	q.Set("failure", r.URL.Query().Get("failure"))
	http.Redirect(w, r, "https://oauth.example/authorize?"+q.Encode(), http.StatusMovedPermanently)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, ok := s.caller(r); !ok || s.denyOrders {
		writeError(w, http.StatusUnauthorized, "user_unauthorized", "The current user is not authorized to perform the requested action.")
		return
	}
	if r.PathValue("db") != Database || r.PathValue("coll") != Orders {
		writeError(w, http.StatusNotFound, "collection_not_found", "Collection with the requested ID could not be found.")
		return
	}
	docs := s.documents
	if docs == nil {
		docs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(docs), "documents": docs})
}

func (s *Server) sessionJSON(secret string, sess *session) appwrite.Session {
	return appwrite.Session{
		ID:       sess.id,
		UserID:   sess.userID,
		Expire:   sess.expire.UTC().Format(timeLayout),
		Provider: "email",
		Current:  true,
		Secret:   secret,
	}
}

func writeError(w http.ResponseWriter, code int, typ, msg string) {
	writeJSON(w, code, appwrite.Error{Code: code, Type: typ, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Route builds the key used by FailNext and Calls.
func Route(method, path string) string {
	return method + " " + strings.TrimSuffix(path, "/")
}
