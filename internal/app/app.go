package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/config"
	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/relay"
	"github.com/vovakirdan/learnwire/internal/store"
	"github.com/vovakirdan/learnwire/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/learnwire/internal/transport/http"
)

// App wires together the store, the hub and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	relay           *relay.Subscriber
	log             *zerolog.Logger
}

// JWTConfig derives the token settings from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := JWTConfig(cfg)
	authService := auth.NewService(st, jwtConfig)
	verifier := auth.NewVerifier(jwtConfig, st)

	hub := core.NewHub(logger,
		core.WithStateOptions(core.WithMaxContentLength(cfg.MaxContentLength)),
		core.WithTypingIdleTimeout(cfg.TypingIdleTimeout),
	)

	server := transporthttp.NewServer(*cfg, transporthttp.Deps{
		Hub:      hub,
		Auth:     authService,
		Verifier: verifier,
		Users:    st,
	}, logger)

	a := &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.relay = relay.NewSubscriber(a.redis, cfg.RedisChannel, hub, logger)
		logger.Info().Str("redis_addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("notification relay enabled")
	}

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
// The hub outlives the HTTP server so that closing sockets can still unregister.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(hubCtx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		// stopping the hub closes every remaining websocket
		stopHub()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if a.relay != nil {
		// the relay retries on its own and only returns once gctx is done
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
