package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-agenda/internal/api"
	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/db"
	"github.com/hackgods/dental-agenda/internal/integration"
	"github.com/hackgods/dental-agenda/internal/logging"
	redisclient "github.com/hackgods/dental-agenda/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Setup(cfg, "api-server")
	logger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("practice_tz", cfg.PracticeTZ).
		Str("lock_backend", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = logger.WithContext(rootCtx)

	pgPool, err := db.Connect(rootCtx, cfg.PostgresDSN, cfg.AutoMigrate)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Bool("migrated", cfg.AutoMigrate).Msg("connected to Postgres")

	locker, rdb, err := redisclient.NewLocker(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}

	var redisPinger api.Pinger
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		redisPinger = api.RedisPinger(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	repo := appointment.NewPgRepository(pgPool)
	store := integration.NewPgStore(pgPool)
	dispatcher := integration.NewDispatcher(store, repo, cfg)
	svc := appointment.NewService(repo, locker, cfg,
		appointment.WithHooks(integration.NewSyncHook(dispatcher)),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Dispatcher:   dispatcher,
		Integrations: store,
		Postgres:     pgPool,
		Redis:        redisPinger,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
		RateRPS:      cfg.RateRPS,
		RateBurst:    cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("api-server stopped")
}
