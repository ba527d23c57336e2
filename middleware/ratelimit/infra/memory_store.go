package infra

import (
	"context"
	"sync"
	"time"

	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
)

// MemoryStore é um SharedStore em processo: um mapa protegido por mutex com
// TTL por chave e limpeza periódica.
//
// Serve para um único processo (dev, testes, simulação). Com mais de uma
// réplica use RedisStore.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*memoryEntry
	clock        clock.Clock
	cleanupEvery time.Duration
}

type memoryEntry struct {
	log       domain.Log
	expiresAt time.Time // zero = sem expiração
}

type MemoryStoreOption func(*MemoryStore)

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func WithClock(c clock.Clock) MemoryStoreOption {
	return func(s *MemoryStore) { s.clock = c }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]*memoryEntry),
		clock:        clock.Real{},
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.SharedStore = (*MemoryStore)(nil)

// AtomicUpdate implementa domain.SharedStore. fn roda com o lock tomado.
func (s *MemoryStore) AtomicUpdate(ctx context.Context, key domain.Key, ttl time.Duration, fn domain.TransformFunc) (domain.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var current domain.Log
	if ent, ok := s.entries[key]; ok && !ent.expired(now) {
		current = append(domain.Log(nil), ent.log...)
	}

	next := fn(current)

	ent := &memoryEntry{log: append(domain.Log(nil), next...)}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	s.entries[key] = ent
	return next, nil
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Len inclui chaves expiradas ainda não limpas.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
