// Package session owns the client's authentication state: who is logged in,
// whether the startup session check is still running, and the last
// user-visible login error.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/metrics"
	"github.com/matheus3301/mixdesk/internal/status"
)

// Event kinds published by the store, in addition to status.KindStatusChanged.
const (
	KindLoggedIn    = "session.logged_in"
	KindLoginFailed = "session.login_failed"
	KindLoggedOut   = "session.logged_out"
	KindExpired     = "session.expired"
)

// ErrAlreadyChecked is returned by CheckAuth once the session has left Unknown.
var ErrAlreadyChecked = errors.New("session already checked")

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	State           status.State
	IsAuthenticated bool
	IsCheckingAuth  bool
	CurrentUser     backend.UserProfile
	LastError       string
}

// Store is the Session Store. Create one per process with New.
type Store struct {
	client  *backend.Client
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	user      backend.UserProfile
	lastError string
}

// New creates a store over client. The machine must be in Unknown.
func New(client *backend.Client, machine *status.Machine, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  client,
		machine: machine,
		bus:     b,
		logger:  logger,
		metrics: m,
	}
}

// Login authenticates with the backend. The returned error is also recorded
// in the snapshot's LastError as the user-visible message.
func (s *Store) Login(ctx context.Context, email, password string) (backend.UserProfile, error) {
	user, err := s.client.Login(ctx, email, password)
	s.metrics.LoginResult(err == nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.user = backend.UserProfile{}
		s.lastError = backend.UserMessage(err)
		if terr := s.machine.Settle(status.Anonymous); terr != nil {
			s.logger.Warn("login failure transition rejected", zap.Error(terr))
		}
		s.logger.Info("login failed", zap.String("reason", s.lastError), zap.Int("status", backend.StatusOf(err)))
		s.bus.Emit(KindLoginFailed, s.lastError)
		return backend.UserProfile{}, fmt.Errorf("login: %w", err)
	}
	if user.IsZero() {
		s.lastError = backend.GenericMessage
		_ = s.machine.Settle(status.Anonymous)
		s.bus.Emit(KindLoginFailed, s.lastError)
		return backend.UserProfile{}, errors.New("login: empty profile in response")
	}

	s.user = user
	s.lastError = ""
	if terr := s.machine.Settle(status.Authenticated); terr != nil {
		s.logger.Warn("login transition rejected", zap.Error(terr))
	}
	s.logger.Info("logged in", zap.String("user_id", user.ID), zap.String("role", user.RoleName))
	s.bus.Emit(KindLoggedIn, user)
	return user, nil
}

// CheckAuth verifies the session cookies once at startup. A failed check
// leaves the session Anonymous; the error is informational.
func (s *Store) CheckAuth(ctx context.Context) error {
	s.mu.Lock()
	if s.machine.Current() != status.Unknown {
		s.mu.Unlock()
		return ErrAlreadyChecked
	}
	if terr := s.machine.Transition(status.Checking); terr != nil {
		s.mu.Unlock()
		return terr
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.machine.Current() == status.Checking {
			s.user = backend.UserProfile{}
			_ = s.machine.Transition(status.Anonymous)
		}
	}()

	// The refresh-on-401 recovery covers this one request only.
	scoped := s.client.With(backend.RefreshOn401(s.refresh, s.expire))
	user, err := scoped.CheckAuth(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || user.IsZero() {
		s.user = backend.UserProfile{}
		_ = s.machine.Settle(status.Anonymous)
		if err == nil {
			err = errors.New("empty profile in response")
		}
		s.logger.Info("no valid session", zap.Int("status", backend.StatusOf(err)))
		return fmt.Errorf("check auth: %w", err)
	}
	s.user = user
	_ = s.machine.Settle(status.Authenticated)
	s.logger.Info("session restored", zap.String("user_id", user.ID))
	return nil
}

func (s *Store) refresh(ctx context.Context) error {
	s.metrics.RefreshAttempted()
	s.logger.Debug("access token expired, refreshing")
	return s.client.RefreshToken(ctx)
}

// expire forces the empty Anonymous state after an unrecoverable refresh.
func (s *Store) expire(err error) {
	s.metrics.RefreshFailed()
	s.logger.Info("session refresh failed", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = backend.UserProfile{}
	if terr := s.machine.Settle(status.Anonymous); terr != nil {
		s.logger.Warn("expiry transition rejected", zap.Error(terr))
	}
	s.bus.Emit(KindExpired, backend.UserMessage(err))
}

// Logout ends the session. On failure the state is left unchanged and the
// error is returned for the caller to surface.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn("logout failed", zap.Error(err))
		return fmt.Errorf("logout: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.user
	s.user = backend.UserProfile{}
	s.lastError = ""
	if terr := s.machine.Settle(status.Anonymous); terr != nil {
		s.logger.Warn("logout transition rejected", zap.Error(terr))
	}
	s.logger.Info("logged out", zap.String("user_id", prev.ID))
	s.bus.Emit(KindLoggedOut, prev.ID)
	return nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.machine.Current()
	return Snapshot{
		State:           st,
		IsAuthenticated: st == status.Authenticated,
		IsCheckingAuth:  st == status.Checking,
		CurrentUser:     s.user,
		LastError:       s.lastError,
	}
}

// CurrentUser returns the logged-in profile, if any.
func (s *Store) CurrentUser() (backend.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.machine.Current() != status.Authenticated {
		return backend.UserProfile{}, false
	}
	return s.user, true
}
