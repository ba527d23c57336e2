package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"throttle-gateway/config"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
)

// resources guarda o que precisa ser fechado no shutdown.
type resources struct {
	logger  zerolog.Logger
	rdb     redis.UniversalClient
	closers []func() error
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// redis cria o cliente compartilhado. Um ping falho não impede a subida: o
// gate faz fail-open enquanto o Redis estiver fora e o cliente reconecta sozinho.
func (r *resources) redis(ctx context.Context, cfg config.RedisConfig) redis.UniversalClient {
	if r.rdb != nil {
		return r.rdb
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		r.logger.Warn().Err(err).
			Str("addr", cfg.Addr).
			Msg("redis unreachable at startup, rate limiting will fail open until it recovers")
	}

	r.rdb = rdb
	r.closers = append(r.closers, rdb.Close)
	return rdb
}

// buildStore escolhe o SharedStore. O janitor do store em memória para junto com ctx.
func buildStore(ctx context.Context, cfg config.Config, res *resources) (domain.SharedStore, error) {
	switch cfg.Rate.Store {
	case "redis":
		rdb := res.redis(ctx, cfg.Redis)
		return infra.NewRedisStore(rdb, infra.WithKeyPrefix(cfg.Rate.KeyPrefix)), nil
	case "memory":
		store := infra.NewMemoryStore(infra.WithCleanupEvery(cfg.Rate.JanitorEvery))
		store.StartJanitor(ctx)
		return store, nil
	}
	return nil, fmt.Errorf("unknown RATE_STORE %q", cfg.Rate.Store)
}

// buildStats devolve nil quando estatísticas estão desligadas.
func buildStats(ctx context.Context, cfg config.Config, res *resources) (domain.StatsStore, error) {
	if !cfg.Stats.Enabled {
		return nil, nil
	}
	switch cfg.Stats.Backend {
	case "memory":
		return infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys)), nil
	case "redis":
		rdb := res.redis(ctx, cfg.Redis)
		return infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		), nil
	case "sql":
		db, err := openStatsDB(cfg.Stats.SQLDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("stats db handle: %w", err)
		}
		res.closers = append(res.closers, sqlDB.Close)
		return infra.NewSQLStatsStore(db)
	}
	return nil, fmt.Errorf("unknown RATE_STATS_BACKEND %q", cfg.Stats.Backend)
}

func openStatsDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	return db, nil
}

func logStartup(logger zerolog.Logger, cfg config.Config) {
	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("upstream", cfg.UpstreamURL).
		Bool("rate_enabled", cfg.Rate.Enabled).
		Str("rate_store", cfg.Rate.Store).
		Bool("stats_enabled", cfg.Stats.Enabled).
		Str("stats_backend", cfg.Stats.Backend).
		Int("concurrency_max", cfg.ConcurrencyMax).
		Dur("concurrency_timeout", cfg.ConcurrencyTimeout).
		Bool("tracing", cfg.Tracing.Enabled).
		Msg("gateway starting")
}
