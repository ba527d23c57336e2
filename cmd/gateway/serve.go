package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"throttle-gateway/config"
	"throttle-gateway/middleware/ratelimit"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
	"throttle-gateway/middleware/requestid"
	"throttle-gateway/telemetry"
)

const statsPath = "/-/ratelimit/stats"

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the rate limiting reverse proxy",
		Example: `  UPSTREAM_URL=http://localhost:9000 gateway serve
  RATE_STORE=redis REDIS_ADDR=localhost:6379 UPSTREAM_URL=http://api:8080 gateway serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Stderr, cfg)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName: "gateway",
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	res := &resources{logger: logger}
	defer res.Close()

	var store domain.SharedStore
	if cfg.Rate.Enabled {
		if store, err = buildStore(ctx, cfg, res); err != nil {
			return err
		}
	}
	stats, err := buildStats(ctx, cfg, res)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           buildHandler(cfg, logger, proxy, store, stats),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logStartup(logger, cfg)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info().Msg("gateway stopped")
	return nil
}

// buildHandler monta a cadeia: request id -> rate limit por tier -> concorrência -> upstream.
func buildHandler(cfg config.Config, logger zerolog.Logger, upstream http.Handler, store domain.SharedStore, stats domain.StatsStore) http.Handler {
	h := upstream
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Logger:         &logger,
	})(h)

	if cfg.Rate.Enabled {
		policies := cfg.Rate.Policies
		h = ratelimit.Middleware(ratelimit.Options{
			Store:              store,
			Policies:           &policies,
			IgnoreForwardedFor: cfg.Rate.IgnoreForwardedFor,
			Stats:              stats,
			Logger:             &logger,
		})(h)
	}

	if mem, ok := stats.(*infra.MemoryStatsStore); ok {
		mux := http.NewServeMux()
		mux.Handle(statsPath, statsHandler(mem))
		mux.Handle("/", h)
		h = mux
	}

	return requestid.Middleware(logger)(h)
}

func statsHandler(mem *infra.MemoryStatsStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":    mem.Total(),
			"by_scope": mem.ByScope(),
			"by_route": mem.ByRoute(),
			"by_key":   mem.ByKey(),
		})
	})
}
