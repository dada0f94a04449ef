package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/config"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/discovery"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/log"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store/sqlite"
	transporthttp "github.com/Mangamer21/Aquadroom-portofoon/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	retention       time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	advertiser      *discovery.Advertiser
	log             *zerolog.Logger
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	mdnsFactory discovery.MDNSServerFactory
}

// WithMDNSServerFactory replaces the zeroconf registration used for discovery.
func WithMDNSServerFactory(f discovery.MDNSServerFactory) Option {
	return func(o *options) { o.mdnsFactory = f }
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		st           *sqlite.SQLiteStore
		sessionStore store.SessionStore
	)
	if cfg.DatabasePath != "" {
		var err error
		st, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		sessionStore = st
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("session audit enabled")
	}

	hub := core.NewHub(channelSpecs(cfg.Channels), core.WithLogger(log.Module(logger, "hub")))
	server := transporthttp.NewServer(hub, sessionStore, cfg, log.Module(logger, "http"))

	a := &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		retention:       cfg.SessionRetention,
		hub:             hub,
		store:           st,
		log:             logger,
	}

	if cfg.Discovery.Enabled {
		port, err := discovery.PortFromAddr(cfg.Addr)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Instance:      cfg.Discovery.Instance,
			Service:       cfg.Discovery.Service,
			Domain:        cfg.Discovery.Domain,
			Port:          port,
			Path:          transporthttp.WSPath,
			Protocol:      proto.ProtocolVersion,
			ServerFactory: o.mdnsFactory,
			Logger:        log.Module(logger, "discovery"),
		})
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init discovery: %w", err)
		}
		a.advertiser = adv
	}

	return a, nil
}

// Hub exposes the session coordinator.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()
	defer func() {
		stopHub()
		<-hubDone
	}()

	a.pruneSessions(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	if a.advertiser != nil {
		if err := a.advertiser.Start(); err != nil {
			a.log.Warn().Err(err).Msg("lan discovery unavailable")
		}
	}

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if a.advertiser != nil {
			_ = a.advertiser.Close()
		}
		// Closing every mailbox ends the websocket write loops so Shutdown
		// does not wait on open connections.
		stopHub()
		<-hubDone
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) pruneSessions(ctx context.Context) {
	if a.store == nil || a.retention <= 0 {
		return
	}
	n, err := a.store.PruneBefore(ctx, time.Now().Add(-a.retention))
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to prune sessions")
		return
	}
	if n > 0 {
		a.log.Info().Int64("sessions", n).Msg("pruned old sessions")
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.advertiser != nil {
		_ = a.advertiser.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

func channelSpecs(channels []config.ChannelConfig) []core.ChannelSpec {
	out := make([]core.ChannelSpec, 0, len(channels))
	for _, ch := range channels {
		out = append(out, core.ChannelSpec{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.Description,
		})
	}
	return out
}
