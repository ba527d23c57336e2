package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"throttle-gateway/config"
	"throttle-gateway/middleware/ratelimit"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
)

// Exemplo: os gates usados direto dentro de uma aplicação (sem proxy).
func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	logger = logger.Level(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store domain.SharedStore
	if cfg.Rate.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		store = infra.NewRedisStore(rdb, infra.WithKeyPrefix(cfg.Rate.KeyPrefix))
	} else {
		mem := infra.NewMemoryStore(infra.WithCleanupEvery(cfg.Rate.JanitorEvery))
		mem.StartJanitor(ctx)
		store = mem
	}

	policies := cfg.Rate.Policies
	limiter := ratelimit.New(ratelimit.Options{
		Store:    store,
		Policies: &policies,
		Logger:   &logger,
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("store", cfg.Rate.Store).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
