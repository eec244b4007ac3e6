package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/auth"
	"github.com/olegsharov/converse-server/internal/config"
	"github.com/olegsharov/converse-server/internal/core"
	"github.com/olegsharov/converse-server/internal/events"
	"github.com/olegsharov/converse-server/internal/store"
	"github.com/olegsharov/converse-server/internal/store/sqlite"
	transporthttp "github.com/olegsharov/converse-server/internal/transport/http"
	"github.com/olegsharov/converse-server/internal/utils"
)

// App wires together storage, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	publisher       events.Publisher
	stop            chan struct{}
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = utils.RandomHex(32)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		logger.Warn().Msg("jwt_secret not configured, using an ephemeral secret; tokens will not survive a restart")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(secret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	publisher := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info().Str("mode", publisher.Mode()).Msg("event publisher ready")
	hub := core.NewHub(st, publisher, logger)

	stop := make(chan struct{})
	server := transporthttp.NewServer(hub, authService, st, cfg, logger, stop)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		publisher:       publisher,
		stop:            stop,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database, the event publisher and background workers.
func (a *App) cleanup() {
	close(a.stop)

	if err := a.publisher.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close event publisher")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
