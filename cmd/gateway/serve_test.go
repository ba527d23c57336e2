package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"throttle-gateway/config"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
	"throttle-gateway/middleware/requestid"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	pols, err := domain.DefaultPolicies().WithTier(domain.TierAnonymous, domain.Policy{Limit: 2, Window: time.Minute})
	require.NoError(t, err)

	return config.Config{
		ListenAddr:  ":0",
		UpstreamURL: "http://upstream",
		Rate: config.RateConfig{
			Enabled:   true,
			Store:     "memory",
			KeyPrefix: "ratelimit:window",
			Policies:  pols,
		},
		ConcurrencyMax: 10,
		LogFormat:      "json",
	}
}

func TestBuildHandler_LimitsAnonymousTraffic(t *testing.T) {
	cfg := testConfig(t)
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("upstream"))
	})
	stats := infra.NewMemoryStatsStore()
	h := buildHandler(cfg, zerolog.Nop(), upstream, infra.NewMemoryStore(), stats)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		assert.NotEmpty(t, w.Header().Get(requestid.Header))
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// endpoint de estatísticas não passa pelo limite nem vai para o upstream
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, statsPath, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total infra.Counters `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, infra.Counters{Allowed: 2, Denied: 1}, body.Total)
}

func TestBuildHandler_RateDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = false
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := buildHandler(cfg, zerolog.Nop(), upstream, nil, nil)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestBuildStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Rate.Store = "redis"
	cfg.Redis.Addr = mr.Addr()

	res := &resources{}
	defer res.Close()

	store, err := buildStore(context.Background(), cfg, res)
	require.NoError(t, err)
	_, ok := store.(*infra.RedisStore)
	assert.True(t, ok)

	// estatísticas no mesmo Redis reaproveitam o cliente
	cfg.Stats = config.StatsConfig{Enabled: true, Backend: "redis", Prefix: "s", TTL: time.Hour, Bucket: "none"}
	stats, err := buildStats(context.Background(), cfg, res)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Len(t, res.closers, 1)
}

// Redis fora do ar na subida: o gateway sobe mesmo assim e libera o tráfego.
func TestBuildStore_RedisUnreachableStartsAndFailsOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Store = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	res := &resources{logger: logger}
	defer res.Close()

	store, err := buildStore(context.Background(), cfg, res)
	require.NoError(t, err)
	_, ok := store.(*infra.RedisStore)
	require.True(t, ok)
	assert.Len(t, res.closers, 1)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "redis unreachable at startup")

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := buildHandler(cfg, zerolog.Nop(), upstream, store, nil)

	// o limite anônimo é 2; com o store fora nenhuma requisição é negada
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestBuildStats_SQL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stats = config.StatsConfig{Enabled: true, Backend: "sql", SQLDSN: filepath.Join(t.TempDir(), "stats.db")}

	res := &resources{}
	defer res.Close()

	stats, err := buildStats(context.Background(), cfg, res)
	require.NoError(t, err)
	require.NoError(t, stats.Record(context.Background(), domain.StatsEvent{Scope: "anon", Allowed: true, Method: "GET", Path: "/", At: time.Now()}))

	sqlStats, ok := stats.(*infra.SQLStatsStore)
	require.True(t, ok)
	rows, err := sqlStats.Totals(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0].Allowed)
}

func TestBuildStats_Disabled(t *testing.T) {
	stats, err := buildStats(context.Background(), testConfig(t), &resources{})
	require.NoError(t, err)
	assert.Nil(t, stats)
}
