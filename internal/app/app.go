package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/auth"
	"github.com/vovakirdan/pulsechat-server/internal/config"
	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/ratelimit"
	"github.com/vovakirdan/pulsechat-server/internal/service/chats"
	"github.com/vovakirdan/pulsechat-server/internal/service/receipts"
	"github.com/vovakirdan/pulsechat-server/internal/store"
	"github.com/vovakirdan/pulsechat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/pulsechat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	limiter         *ratelimit.Limiter
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	hubLogger := logger.With().Str("component", "hub").Logger()
	hub := core.NewHub(core.HubConfig{TypingTimeout: cfg.TypingTimeout}, &hubLogger)

	deps := transporthttp.Deps{
		Hub:      hub,
		Auth:     authService,
		Store:    st,
		Chats:    chats.New(st),
		Receipts: receipts.New(st, logger),
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}

	if cfg.RedisAddr != "" {
		a.limiter = ratelimit.NewLimiter(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), logger)
		deps.Limiter = a.limiter
		logger.Info().Str("redis_addr", cfg.RedisAddr).Int("limit", cfg.MessageRateLimit).Dur("window", cfg.MessageRateWindow).Msg("message rate limit enabled")
	}

	a.server = transporthttp.NewServer(deps, cfg, logger)
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting pulsechat server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
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

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
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
