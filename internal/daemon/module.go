// Package daemon composes the sync core into a running process.
package daemon

import (
	"context"

	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/client"
	"github.com/tmarcondes/pulse/internal/config"
	"github.com/tmarcondes/pulse/internal/conn"
	"github.com/tmarcondes/pulse/internal/device"
	"github.com/tmarcondes/pulse/internal/dispatch"
	"github.com/tmarcondes/pulse/internal/lock"
	"github.com/tmarcondes/pulse/internal/logging"
	"github.com/tmarcondes/pulse/internal/poll"
	"github.com/tmarcondes/pulse/internal/rest"
	"github.com/tmarcondes/pulse/internal/session"
	"github.com/tmarcondes/pulse/internal/state"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// DeviceID is the stable per-session device identifier.
type DeviceID string

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideSessionConfig,
			provideLock,
			provideDeviceID,
			provideStore,
			provideManager,
			provideDispatcher,
			provideRest,
			providePoller,
			provideClient,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideSessionConfig(p Params) (*config.Session, error) {
	return config.LoadSession(session.SessionConfigPath(p.SessionName))
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideDeviceID(p Params, _ *lock.Lock, logger *zap.Logger) (DeviceID, error) {
	id, err := device.LoadOrCreate(session.DeviceIDPath(p.SessionName))
	if err != nil {
		return "", err
	}
	logger.Info("device identity loaded", zap.String("device_id", id))
	return DeviceID(id), nil
}

func provideStore(cfg *config.Session, b *bus.Bus, logger *zap.Logger) *state.Store {
	return state.New(b, logger, cfg.APIBaseURL)
}

func provideManager(cfg *config.Session, id DeviceID, b *bus.Bus, logger *zap.Logger) *conn.Manager {
	return conn.NewManager(conn.Options{
		URL:               cfg.ServerURL,
		SessionToken:      cfg.SessionToken,
		DeviceID:          string(id),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		PongTimeout:       cfg.PongTimeout(),
		QueueCapacity:     cfg.Queue(),
		MaxAttempts:       cfg.ReconnectAttempts(),
	}, b, logger)
}

func provideDispatcher(m *conn.Manager, s *state.Store, b *bus.Bus, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(m, s, b, logger)
}

func provideRest(cfg *config.Session, id DeviceID, b *bus.Bus, logger *zap.Logger) *rest.Client {
	return rest.New(cfg.APIBaseURL, cfg.SessionToken, string(id), b, logger)
}

func providePoller(api *rest.Client, s *state.Store, m *conn.Manager, cfg *config.Session, b *bus.Bus, logger *zap.Logger) *poll.Poller {
	return poll.New(api, s, b, logger, m.Connect, poll.Options{Interval: cfg.PollInterval()})
}

func provideClient(s *state.Store, m *conn.Manager, api *rest.Client, p *poll.Poller, b *bus.Bus, logger *zap.Logger) *client.Client {
	return client.New(s, m, api, p, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Session, m *conn.Manager, d *dispatch.Dispatcher, p *poll.Poller, c *client.Client, lk *lock.Lock, logger *zap.Logger) {
	pollCtx, cancelPoll := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			m.SetHandler(d)
			go p.Run(pollCtx)
			c.SetVisible(true)

			if cfg.SessionToken == "" {
				logger.Info("no session token configured, staying offline")
				return nil
			}
			go func() {
				if err := m.Connect(context.Background()); err != nil {
					logger.Error("initial connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelPoll()
			m.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
