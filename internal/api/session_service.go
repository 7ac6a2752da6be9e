package api

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/realtime"
	"github.com/matheus3301/mixdesk/internal/rpc"
	"github.com/matheus3301/mixdesk/internal/session"
)

// HubState reports the realtime connection state.
type HubState interface {
	State() realtime.State
}

// SessionService implements rpc.SessionServer over the Session Store.
type SessionService struct {
	profile   string
	startedAt time.Time
	store     *session.Store
	hub       HubState
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(profile string, store *session.Store, hub HubState, b *bus.Bus, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		profile:   profile,
		startedAt: time.Now(),
		store:     store,
		hub:       hub,
		bus:       b,
		logger:    logger,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *rpc.GetStatusRequest) (*rpc.StatusResponse, error) {
	snap := s.store.Snapshot()
	resp := &rpc.StatusResponse{
		Profile:         s.profile,
		State:           string(snap.State),
		IsAuthenticated: snap.IsAuthenticated,
		IsCheckingAuth:  snap.IsCheckingAuth,
		LastError:       snap.LastError,
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
	}
	if !snap.CurrentUser.IsZero() {
		user := snap.CurrentUser
		resp.User = &user
	}
	if s.hub != nil {
		resp.HubState = string(s.hub.State())
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	user, err := s.store.Login(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.LoginResponse{User: user}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *rpc.LogoutRequest) (*rpc.LogoutResponse, error) {
	if err := s.store.Logout(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.LogoutResponse{}, nil
}
