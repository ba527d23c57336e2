package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// RedisStore é o SharedStore compartilhado entre réplicas.
//
// O log de cada chave é um sorted set: score = timestamp, member = xid único.
// SlideWindow roda a poda + append inteira em um script Lua, atômico no
// servidor, então réplicas concorrentes nunca ultrapassam o limite.
// AtomicUpdate (transformação arbitrária) usa WATCH/MULTI/EXEC e pode devolver
// ErrContention depois de maxAttempts.
type RedisStore struct {
	rdb         redis.UniversalClient
	prefix      string
	maxAttempts int
}

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithMaxAttempts limita as tentativas de CAS de AtomicUpdate sob contenção.
func WithMaxAttempts(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:         rdb,
		prefix:      "ratelimit:window",
		maxAttempts: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ domain.SharedStore = (*RedisStore)(nil)
	_ domain.WindowStore = (*RedisStore)(nil)
)

// slideWindowScript: KEYS[1] = chave; ARGV = now, cutoff, limit, member, ttl_ms.
// Os números vão como string para não perder precisão no Lua.
// Retorna {allowed, count, oldest_score | false}.
var slideWindowScript = redis.NewScript(`
local key = KEYS[1]
local t = redis.call('TYPE', key)['ok']
if t ~= 'zset' and t ~= 'none' then
	redis.call('DEL', key)
end

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local limit = tonumber(ARGV[3])
local allowed = 0
if count < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	count = count + 1
	allowed = 1
end
if count > 0 then
	redis.call('PEXPIRE', key, ARGV[5])
end

local oldest = false
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first == 2 then
	oldest = first[2]
end
return {allowed, count, oldest}
`)

func (s *RedisStore) redisKey(key domain.Key) string {
	if s.prefix == "" {
		return string(key)
	}
	return s.prefix + ":" + string(key)
}

func (s *RedisStore) SlideWindow(ctx context.Context, key domain.Key, now float64, window time.Duration, limit int) (domain.WindowResult, error) {
	if s == nil || s.rdb == nil {
		return domain.WindowResult{}, errors.New("redis client not configured")
	}

	rkey := s.redisKey(key)
	cutoff := now - window.Seconds()
	args := []any{
		formatScore(now),
		formatScore(cutoff),
		strconv.Itoa(limit),
		xid.New().String(),
		strconv.FormatInt(ttlMillis(window), 10),
	}

	raw, err := slideWindowScript.Run(ctx, s.rdb, []string{rkey}, args...).Slice()
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("redis slide window %q: %w", rkey, err)
	}
	return parseWindowResult(raw)
}

func (s *RedisStore) AtomicUpdate(ctx context.Context, key domain.Key, ttl time.Duration, fn domain.TransformFunc) (domain.Log, error) {
	if s == nil || s.rdb == nil {
		return nil, errors.New("redis client not configured")
	}

	rkey := s.redisKey(key)
	var out domain.Log

	txf := func(tx *redis.Tx) error {
		current, err := readLog(ctx, tx, rkey)
		if err != nil {
			return err
		}

		next := fn(current)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			if len(next) == 0 {
				return nil
			}
			members := make([]redis.Z, len(next))
			for i, ts := range next {
				members[i] = redis.Z{Score: ts, Member: xid.New().String()}
			}
			pipe.ZAdd(ctx, rkey, members...)
			pipe.PExpire(ctx, rkey, time.Duration(ttlMillis(ttl))*time.Millisecond)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, rkey)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("redis atomic update %q: %w", rkey, err)
	}
	return nil, fmt.Errorf("%w: %d attempts on %q", domain.ErrContention, s.maxAttempts, rkey)
}

// readLog lê o sorted set em ordem de score. Um valor de outro tipo (formato
// antigo ou lixo) conta como log vazio; a próxima gravação sobrescreve.
func readLog(ctx context.Context, tx *redis.Tx, rkey string) (domain.Log, error) {
	zs, err := tx.ZRangeWithScores(ctx, rkey, 0, -1).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return nil, nil
		}
		return nil, err
	}
	if len(zs) == 0 {
		return nil, nil
	}
	log := make(domain.Log, len(zs))
	for i, z := range zs {
		log[i] = z.Score
	}
	return log, nil
}

func parseWindowResult(raw []any) (domain.WindowResult, error) {
	if len(raw) != 3 {
		return domain.WindowResult{}, fmt.Errorf("unexpected slide window reply: %v", raw)
	}
	allowed, ok1 := raw[0].(int64)
	count, ok2 := raw[1].(int64)
	if !ok1 || !ok2 {
		return domain.WindowResult{}, fmt.Errorf("unexpected slide window reply: %v", raw)
	}

	res := domain.WindowResult{Allowed: allowed == 1, Count: int(count)}
	if s, ok := raw[2].(string); ok {
		oldest, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.WindowResult{}, fmt.Errorf("parse oldest score %q: %w", s, err)
		}
		res.Oldest = oldest
	}
	return res, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ttlMillis arredonda para cima: PEXPIRE 0 apagaria a chave na hora.
func ttlMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return max(ms, 1)
}
