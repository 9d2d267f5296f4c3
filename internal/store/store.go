// Package store implements the client-side auth state machine.
//
// A Store mirrors {user, isAuthenticated, isLoading} for one browser session
// or CLI client. It is an explicit object built with New and handed to the
// route guards; there is no package-level instance.
//
// Identity refreshes are single-flight: concurrent GetUser calls share one
// CurrentUser request, and that request outlives any one caller. Every transition that resets identity (login, logout,
// reset) advances an epoch, and a refresh that began in an earlier epoch
// discards its result instead of overwriting newer state.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
)

// API is the server surface the store drives.
type API interface {
	Login(ctx context.Context, creds entity.Credentials) (*entity.Session, error)
	Logout(ctx context.Context) error
	// CurrentUser returns a result with a nil User and an Error message on a
	// soft failure, and an error on a hard one.
	CurrentUser(ctx context.Context) (*entity.UserResult, error)
}

// Status is a copy of the store state.
type Status struct {
	User            *entity.User
	IsAuthenticated bool
	IsLoading       bool
}

// Anonymous reports whether no identity is held.
func (s Status) Anonymous() bool { return s.User == nil && !s.IsAuthenticated }

// Snapshot is the persisted part of the state. It is advisory.
type Snapshot struct {
	User            *entity.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// Persister mirrors snapshots to durable storage. Load returns nil, nil when
// nothing is stored.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// Refresh results passed to the refresh observer.
const (
	RefreshAuthenticated = "authenticated"
	RefreshAnonymous     = "anonymous"
	RefreshError         = "error"
	RefreshStale         = "stale"
)

var errStaleRefresh = errors.New("identity changed during refresh")

// refreshTimeout bounds a shared refresh once it no longer follows its caller.
const refreshTimeout = 15 * time.Second

type Option func(*Store)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithRefreshObserver registers fn to be told the result of every refresh.
func WithRefreshObserver(fn func(result string)) Option {
	return func(s *Store) { s.observe = fn }
}

type Store struct {
	api       API
	logger    *zap.SugaredLogger
	persister Persister
	observe   func(string)
	group     singleflight.Group

	mu            sync.Mutex
	user          *entity.User
	authenticated bool
	inflight      int
	epoch         uint64
	stale         bool
}

func New(api API, opts ...Option) *Store {
	s := &Store{api: api, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns a copy of the current state.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{User: s.user, IsAuthenticated: s.authenticated, IsLoading: s.inflight > 0}
}

// Stale reports whether the state came from a snapshot and has not been
// revalidated yet.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// Login authenticates with creds. On failure the state is left as it was.
func (s *Store) Login(ctx context.Context, creds entity.Credentials) bool {
	s.begin()
	defer s.end()

	sess, err := s.api.Login(ctx, creds)
	if err != nil {
		s.logger.Infow("login failed", "err", err)
		return false
	}
	if sess == nil || sess.Secret == "" {
		s.logger.Warnw("login returned no session secret")
		return false
	}

	s.mu.Lock()
	s.epoch++
	s.user = nil
	s.stale = false
	s.mu.Unlock()
	s.UpdateAuthStatus(sess.Secret)
	return true
}

// Logout ends the remote session. On failure the state is left as it was.
func (s *Store) Logout(ctx context.Context) bool {
	s.begin()
	defer s.end()

	if err := s.api.Logout(ctx); err != nil {
		s.logger.Infow("logout failed", "err", err)
		return false
	}
	s.Reset()
	return true
}

// GetUser refreshes the user record. Without a user the store is reset
// locally; the remote logout endpoint is not called.
func (s *Store) GetUser(ctx context.Context) bool {
	ok, _ := s.Refresh(ctx)
	return ok
}

// Refresh is GetUser reporting why no user was found. A nil error with ok
// false means the server holds no identity for the session. A non-nil error
// means the outcome is unknown: the provider failed, the refresh was
// superseded by a newer identity, or ctx ended before the shared refresh did.
//
// The shared request is detached from the caller that started it, so one
// caller leaving does not fail the others or reset the store.
func (s *Store) Refresh(ctx context.Context) (bool, error) {
	s.begin()
	defer s.end()

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	ch := s.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(rctx, epoch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Store) refresh(ctx context.Context, epoch uint64) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("identity refresh panicked", "panic", fmt.Sprint(r))
			s.notify(RefreshError)
			ok, err = false, fmt.Errorf("identity refresh panicked: %v", r)
		}
	}()

	res, err := s.api.CurrentUser(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debugw("discarding refresh from earlier identity", "epoch", epoch)
		s.notify(RefreshStale)
		return false, errStaleRefresh
	}
	if err != nil || res == nil || res.User == nil {
		s.resetLocked()
		s.mu.Unlock()
		s.clearSnapshot(ctx)

		if err != nil {
			s.logger.Infow("failed to fetch user", "err", err)
			s.notify(RefreshError)
			return false, err
		}
		if res != nil && res.Error != "" {
			s.logger.Infow("no current user", "reason", res.Error)
		}
		s.notify(RefreshAnonymous)
		return false, nil
	}
	u := *res.User
	s.user = &u
	s.authenticated = true
	s.stale = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.notify(RefreshAuthenticated)
	return true, nil
}

// UpdateAuthStatus marks the store authenticated iff token is non-empty. It
// neither fetches nor clears the user record.
func (s *Store) UpdateAuthStatus(token string) {
	s.mu.Lock()
	s.authenticated = token != ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(context.Background(), snap)
}

// CheckAuthStatus refreshes the user when the store believes it is
// authenticated. Failures are logged only.
func (s *Store) CheckAuthStatus(ctx context.Context) {
	if !s.Status().IsAuthenticated {
		return
	}
	if !s.GetUser(ctx) {
		s.logger.Debugw("auth status check found no user")
	}
}

// Reset forces the anonymous state without contacting the server.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.clearSnapshot(context.Background())
}

func (s *Store) resetLocked() {
	s.epoch++
	s.user = nil
	s.authenticated = false
	s.stale = false
}

// Restore applies a persisted snapshot and marks the state stale. It does
// nothing without a persister or a stored snapshot.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	s.mu.Lock()
	s.user = snap.User
	s.authenticated = snap.IsAuthenticated
	s.stale = true
	s.mu.Unlock()
	s.logger.Debugw("restored auth snapshot", "authenticated", snap.IsAuthenticated)
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{User: s.user, IsAuthenticated: s.authenticated}
}

func (s *Store) save(ctx context.Context, snap Snapshot) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.Warnw("failed to persist auth snapshot", "err", err)
	}
}

func (s *Store) clearSnapshot(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Clear(ctx); err != nil {
		s.logger.Warnw("failed to clear auth snapshot", "err", err)
	}
}

func (s *Store) notify(result string) {
	if s.observe != nil {
		s.observe(result)
	}
}
