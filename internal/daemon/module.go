package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/api"
	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/chat"
	"github.com/matheus3301/mixdesk/internal/config"
	"github.com/matheus3301/mixdesk/internal/contacts"
	"github.com/matheus3301/mixdesk/internal/lock"
	"github.com/matheus3301/mixdesk/internal/logging"
	"github.com/matheus3301/mixdesk/internal/metrics"
	"github.com/matheus3301/mixdesk/internal/profile"
	"github.com/matheus3301/mixdesk/internal/realtime"
	"github.com/matheus3301/mixdesk/internal/session"
	"github.com/matheus3301/mixdesk/internal/status"
	intsync "github.com/matheus3301/mixdesk/internal/sync"
)

// checkAuthTimeout bounds the startup session check.
const checkAuthTimeout = 30 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.mixdesk/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideMetrics,
			provideBackend,
			provideSessionStore,
			provideHub,
			provideChatStore,
			provideContacts,
			provideEngine,
			provideSessionService,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	return reg, metrics.New(reg)
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (*backend.Client, error) {
	return backend.New(cfg.API.BaseURL,
		backend.WithTimeout(cfg.API.Timeout.Duration),
		backend.WithLogger(logger.Named("backend")),
	)
}

func provideSessionStore(client *backend.Client, m *status.Machine, b *bus.Bus, logger *zap.Logger, mt *metrics.Metrics) *session.Store {
	return session.New(client, m, b, logger.Named("session"), mt)
}

func provideHub(cfg *config.Config, client *backend.Client, b *bus.Bus, logger *zap.Logger, mt *metrics.Metrics) *realtime.Hub {
	opts := realtime.Options{
		URL:              realtime.Endpoint(client.BaseURL(), cfg.API.HubPath),
		Keepalive:        cfg.Hub.Keepalive.Duration,
		ReconnectInitial: cfg.Hub.ReconnectInitial.Duration,
		ReconnectMax:     cfg.Hub.ReconnectMax.Duration,
	}
	return realtime.New(opts, client.Jar(), b, logger.Named("hub"), mt)
}

func provideChatStore(client *backend.Client, sess *session.Store, hub *realtime.Hub, b *bus.Bus, logger *zap.Logger, mt *metrics.Metrics) *chat.Store {
	return chat.New(client, sess, hub, b, logger.Named("chat"), mt)
}

func provideContacts(client *backend.Client, sess *session.Store, b *bus.Bus, logger *zap.Logger) *contacts.Directory {
	return contacts.New(client, sess, b, logger.Named("contacts"))
}

func provideEngine(hub *realtime.Hub, store *chat.Store, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(hub, store, b, logger.Named("lifecycle"))
}

func provideSessionService(p Params, store *session.Store, hub *realtime.Hub, b *bus.Bus, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(p.ProfileName, store, hub, b, logger)
}

func provideChatService(store *chat.Store, dir *contacts.Directory) *api.ChatService {
	return api.NewChatService(store, dir)
}

type lifecycleDeps struct {
	fx.In

	Config   *config.Config
	Server   *Server
	Lock     *lock.Lock
	Store    *session.Store
	Machine  *status.Machine
	Engine   *intsync.Engine
	Contacts *contacts.Directory
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	var metricsSrv *http.Server
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			d.Contacts.Start(runCtx)
			d.Engine.Start(runCtx, d.Machine.Current())

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if addr := d.Config.Metrics.Addr; addr != "" {
				metricsSrv = &http.Server{Addr: addr, Handler: d.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					d.Logger.Info("metrics listening", zap.String("addr", addr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}

			// Restore the session from cookies, if any.
			go func() {
				ctx, done := context.WithTimeout(runCtx, checkAuthTimeout)
				defer done()
				if err := d.Store.CheckAuth(ctx); err != nil {
					d.Logger.Info("starting anonymous", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			d.Engine.Stop()
			d.Contacts.Stop()
			d.Server.Stop(ctx)
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}
