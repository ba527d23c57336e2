package infra

import (
	"context"
	"testing"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sampleEvents() []domain.StatsEvent {
	at := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	return []domain.StatsEvent{
		{Key: "login:ip_1.1.1.1", Scope: "login", Allowed: true, Method: "POST", Path: "/auth/login", At: at},
		{Key: "login:ip_1.1.1.1", Scope: "login", Allowed: false, Method: "POST", Path: "/auth/login", At: at},
		{Key: "login:user_1", Scope: "login", Allowed: true, Bypassed: true, Tier: domain.TierAdmin, Method: "POST", Path: "/auth/login", At: at},
		{Key: "anon:ip_1.1.1.1", Scope: "anon", Allowed: true, Method: "GET", Path: "/search", At: at},
	}
}

func TestMemoryStatsStore_CountsByOutcome(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	for _, ev := range sampleEvents() {
		require.NoError(t, s.Record(context.Background(), ev))
	}

	require.Equal(t, Counters{Allowed: 2, Denied: 1, Bypassed: 1}, s.Total())
	require.Equal(t, Counters{Allowed: 1, Denied: 1, Bypassed: 1}, s.ByScope()["login"])
	require.Equal(t, Counters{Allowed: 1}, s.ByRoute()["GET /search"])
	require.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByKey()["login:ip_1.1.1.1"])
}

func TestRedisStatsStore_Record(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("st:"), WithStatsTrackKeys(true), WithStatsTTL(time.Hour))
	for _, ev := range sampleEvents() {
		require.NoError(t, s.Record(context.Background(), ev))
	}

	require.Equal(t, "2", mr.HGet("st:total", "allowed"))
	require.Equal(t, "1", mr.HGet("st:total", "denied"))
	require.Equal(t, "1", mr.HGet("st:total", "bypassed"))
	require.Equal(t, "1", mr.HGet("st:scope", "login:denied"))
	require.Equal(t, "2", mr.HGet("st:minute:202401011030", "allowed"))
	require.Equal(t, "1", mr.HGet("st:route", "GET /search:allowed"))
	require.Equal(t, time.Hour, mr.TTL("st:key:login:ip_1.1.1.1"))
}

func TestSQLStatsStore_Upserts(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:stats_upsert?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := NewSQLStatsStore(db)
	require.NoError(t, err)
	for _, ev := range sampleEvents() {
		require.NoError(t, s.Record(context.Background(), ev))
	}

	rows, err := s.Totals(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "anon", rows[0].Scope)
	require.EqualValues(t, 1, rows[0].Allowed)

	login := rows[1]
	require.Equal(t, "POST /auth/login", login.Route)
	require.EqualValues(t, 1, login.Allowed)
	require.EqualValues(t, 1, login.Denied)
	require.EqualValues(t, 1, login.Bypassed)
}
