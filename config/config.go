// Package config centraliza o carregamento de configurações do gateway.
//
// Ordem de precedência (o último vence): defaults, arquivo .env, variáveis de
// ambiente e, para as políticas, o arquivo YAML apontado por RATE_POLICY_FILE.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"throttle-gateway/middleware/ratelimit/domain"
)

const DefaultEnvFile = ".env"

type Config struct {
	ListenAddr  string
	UpstreamURL string

	Rate  RateConfig
	Redis RedisConfig
	Stats StatsConfig

	Tracing TracingConfig

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	LogLevel  zerolog.Level
	LogFormat string
}

type RateConfig struct {
	Enabled            bool
	Store              string // memory | redis
	KeyPrefix          string
	IgnoreForwardedFor bool
	JanitorEvery       time.Duration
	PolicyFile         string
	Policies           domain.Policies
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

type StatsConfig struct {
	Enabled   bool
	Backend   string // memory | redis | sql
	SQLDSN    string
	Prefix    string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
}

// Load monta a configuração. envFile vazio usa ".env" se existir; um envFile
// explícito que não existe é erro. O .env não altera o ambiente do processo.
func Load(envFile string) (Config, error) {
	fileVals, err := readEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	e := &env{file: fileVals}

	cfg := Config{
		ListenAddr:  e.str("LISTEN_ADDR", ":8080"),
		UpstreamURL: e.str("UPSTREAM_URL", ""),
		Rate: RateConfig{
			Enabled:            e.bool("RATE_ENABLED", true),
			Store:              strings.ToLower(e.str("RATE_STORE", "memory")),
			KeyPrefix:          e.str("RATE_KEY_PREFIX", "ratelimit:window"),
			IgnoreForwardedFor: e.bool("RATE_IGNORE_XFF", false),
			JanitorEvery:       e.duration("RATE_JANITOR_EVERY", 30*time.Second),
			PolicyFile:         e.str("RATE_POLICY_FILE", ""),
			Policies:           domain.DefaultPolicies(),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", "localhost:6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
		},
		Stats: StatsConfig{
			Enabled:   e.bool("RATE_STATS_ENABLED", false),
			Backend:   strings.ToLower(e.str("RATE_STATS_BACKEND", "redis")),
			SQLDSN:    e.str("RATE_STATS_SQL_DSN", "file:ratelimit-stats.db"),
			Prefix:    e.str("RATE_STATS_PREFIX", "ratelimit:stats"),
			TTL:       e.duration("RATE_STATS_TTL", 24*time.Hour),
			Bucket:    e.str("RATE_STATS_BUCKET", "minute"),
			TrackKeys: e.bool("RATE_STATS_TRACK_KEYS", false),
		},
		Tracing: TracingConfig{
			Enabled:     e.bool("TRACING_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SampleRatio: e.float("TRACING_SAMPLE_RATIO", 1),
		},
		ConcurrencyMax:     e.int("CONCURRENCY_MAX", 100),
		ConcurrencyTimeout: e.duration("CONCURRENCY_TIMEOUT", 0),
		LogFormat:          strings.ToLower(e.str("LOG_FORMAT", "json")),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(e.str("LOG_LEVEL", "info")))
	if err != nil {
		e.fail(fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	if e.err != nil {
		return Config{}, e.err
	}

	if cfg.Rate.PolicyFile != "" {
		pols, err := LoadPolicyFile(cfg.Rate.PolicyFile, cfg.Rate.Policies)
		if err != nil {
			return Config{}, err
		}
		cfg.Rate.Policies = pols
	}
	return cfg, nil
}

// Validate checa o que o comando serve precisa para subir.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.UpstreamURL) == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid UPSTREAM_URL %q", c.UpstreamURL))
	}
	switch c.Rate.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_STORE must be memory or redis, got %q", c.Rate.Store))
	}
	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case "memory", "redis":
		case "sql":
			if strings.TrimSpace(c.Stats.SQLDSN) == "" {
				errs = append(errs, errors.New("RATE_STATS_SQL_DSN is required when RATE_STATS_BACKEND=sql"))
			}
		default:
			errs = append(errs, fmt.Errorf("RATE_STATS_BACKEND must be memory, redis or sql, got %q", c.Stats.Backend))
		}
	}
	if c.NeedsRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("TRACING_SAMPLE_RATIO must be within [0, 1]"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.ConcurrencyTimeout < 0 {
		errs = append(errs, errors.New("CONCURRENCY_TIMEOUT must be >= 0"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// NeedsRedis diz se algum componente habilitado usa o Redis.
func (c Config) NeedsRedis() bool {
	return (c.Rate.Enabled && c.Rate.Store == "redis") || (c.Stats.Enabled && c.Stats.Backend == "redis")
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

// env lê primeiro o ambiente do processo e depois o .env; guarda o primeiro erro de parse.
type env struct {
	file map[string]string
	err  error
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) lookup(k string) (string, bool) {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(e.file[k]); v != "" {
		return v, true
	}
	return "", false
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return f
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return d
}
