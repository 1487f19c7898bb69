package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openrts/masterserver/internal/auth"
	"github.com/openrts/masterserver/internal/config"
	"github.com/openrts/masterserver/internal/core"
	"github.com/openrts/masterserver/internal/session"
	"github.com/openrts/masterserver/internal/store"
	"github.com/openrts/masterserver/internal/store/sqlite"
	"github.com/openrts/masterserver/internal/transport/httpapi"
	"github.com/openrts/masterserver/internal/transport/tcp"
)

// App wires together the registry, credential store, and both transports
// (the TCP lobby protocol and the optional operational HTTP surface).
type App struct {
	cfgMu sync.RWMutex
	cfg   config.Config

	registry    *core.Registry
	authService *auth.Service
	store       store.Store
	httpServer  *stdhttp.Server

	reload <-chan config.Config
	log    *zerolog.Logger
}

// New constructs the application with the provided configuration. reload
// may be nil if hot reload is not wired up.
func New(cfg config.Config, reload <-chan config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.Database.DBName)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.Database.DBName).Msg("database initialized")

	a := &App{
		cfg:         cfg,
		registry:    core.NewRegistry(),
		authService: auth.NewService(st),
		store:       st,
		reload:      reload,
		log:         logger,
	}

	if cfg.HTTPAddr != "" {
		a.httpServer = httpapi.NewServer(cfg.HTTPAddr, a.registry, logger)
	}

	return a, nil
}

// Run starts the TCP lobby listener and the optional HTTP server, and
// blocks until ctx is cancelled or one of them exits with an error.
func (a *App) Run(ctx context.Context) error {
	tcpErr := make(chan error, 1)
	httpErr := make(chan error, 1)

	deps := session.Deps{
		Registry:        a.registry,
		Auth:            a.authService,
		AcceptedVersion: a.acceptedVersion,
		Logger:          a.log,
	}

	go func() {
		tcpErr <- tcp.ListenAndServe(ctx, a.cfg.Port, deps, a.log)
	}()

	if a.httpServer != nil {
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				httpErr <- err
				return
			}
			httpErr <- nil
		}()
	}

	go a.watchConfig(ctx)

	select {
	case err := <-tcpErr:
		a.cleanup()
		return err
	case err := <-httpErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down")
		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
				a.cleanup()
				return err
			}
		}
		a.cleanup()
		return nil
	}
}

// acceptedVersion returns the currently configured accepted protocol
// version, safe to call concurrently with watchConfig's reloads.
func (a *App) acceptedVersion() []int {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg.AcceptedVersion
}

// watchConfig copies hot-reloaded values (everything except Port and
// Database, see config.UpdateFrom) into a.cfg as they arrive.
// AcceptedVersion takes effect for new connections and ShutdownTimeout
// for the next shutdown; the logger and HTTP server built at startup are
// not rebuilt, so LogLevel and HTTPAddr changes have no effect.
func (a *App) watchConfig(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-a.reload:
			if !ok {
				return
			}
			a.cfgMu.Lock()
			a.cfg.UpdateFrom(newCfg)
			a.cfgMu.Unlock()
			a.log.Info().Msg("configuration reloaded")
		}
	}
}

// cleanup stops the registry actor and closes the credential store.
func (a *App) cleanup() {
	a.registry.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
