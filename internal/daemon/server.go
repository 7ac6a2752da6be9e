package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/matheus3301/mixdesk/internal/api"
	"github.com/matheus3301/mixdesk/internal/guard"
	"github.com/matheus3301/mixdesk/internal/lock"
	"github.com/matheus3301/mixdesk/internal/logging"
	"github.com/matheus3301/mixdesk/internal/profile"
	"github.com/matheus3301/mixdesk/internal/rpc"
	"github.com/matheus3301/mixdesk/internal/session"
)

// Rules gates each control-plane call on the session state.
var Rules = guard.Rules{
	"/" + rpc.ChatServiceName + "/": guard.RequireAuthenticated,
	rpc.SessionLogin:                guard.RequireAnonymous,
	rpc.SessionLogout:               guard.RequireAuthenticated,
}

// Server manages the gRPC server lifecycle for a profile daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the profile's Unix domain socket.
// Taking the lock first keeps a second daemon from unlinking a live socket.
func NewServer(
	p Params,
	_ *lock.Lock,
	logger *zap.Logger,
	store *session.Store,
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(guard.UnaryInterceptor(store.Snapshot, Rules)),
		grpc.ChainStreamInterceptor(guard.StreamInterceptor(store.Snapshot, Rules)),
	)
	rpc.RegisterSessionServer(srv, sessionSvc)
	rpc.RegisterChatServer(srv, chatSvc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logging.OrNop(logger),
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open event
// streams are cut when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing open streams")
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}
