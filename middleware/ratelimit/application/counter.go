package application

import (
	"context"
	"fmt"
	"time"

	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
)

// SlidingWindowCounter implementa o algoritmo de janela deslizante sobre um
// log de timestamps por chave, guardado no SharedStore.
//
// Não guarda estado próprio: todo estado mutável está no store, e o
// prune+append roda dentro de um único AtomicUpdate (ou SlideWindow, quando o
// store implementa domain.WindowStore). Pode ser instanciado por
// requisição sem sincronização.
type SlidingWindowCounter struct {
	Store domain.SharedStore
	Clock clock.Clock
}

func NewSlidingWindowCounter(store domain.SharedStore, clk clock.Clock) *SlidingWindowCounter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SlidingWindowCounter{Store: store, Clock: clk}
}

var _ domain.Counter = (*SlidingWindowCounter)(nil)

// Check registra a requisição se couber em (limit, window).
//
// Requisições rejeitadas não entram no log, então repetir um check negado não
// infla a contagem. Erros do store voltam embrulhados em ErrBackendUnavailable.
func (c *SlidingWindowCounter) Check(ctx context.Context, key domain.Key, limit int, window time.Duration) (domain.Decision, error) {
	if err := (domain.Policy{Limit: limit, Window: window}).Validate(); err != nil {
		return domain.Decision{}, err
	}
	if c.Store == nil {
		return domain.Decision{}, fmt.Errorf("%w: no store configured", domain.ErrBackendUnavailable)
	}

	now := c.now()
	nowS := clock.Seconds(now)
	if ws, ok := c.Store.(domain.WindowStore); ok {
		return c.checkServerSide(ctx, ws, key, now, limit, window)
	}
	cutoff := nowS - window.Seconds()

	var dec domain.Decision
	_, err := c.Store.AtomicUpdate(ctx, key, window, func(current domain.Log) domain.Log {
		kept := make(domain.Log, 0, len(current)+1)
		for _, ts := range current {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}

		dec = domain.Decision{Limit: limit}
		if len(kept) < limit {
			kept = append(kept, nowS)
			dec.Allowed = true
			dec.Remaining = limit - len(kept)
		}
		dec.ResetAt = resetAt(kept, now, window)
		return kept
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: check %q: %w", domain.ErrBackendUnavailable, key, err)
	}

	if !dec.Allowed {
		dec.RetryAfter = retryAfter(dec.ResetAt, now, window)
	}
	return dec, nil
}

// checkServerSide delega poda + append ao store em um único passo, sem CAS.
func (c *SlidingWindowCounter) checkServerSide(ctx context.Context, ws domain.WindowStore, key domain.Key, now time.Time, limit int, window time.Duration) (domain.Decision, error) {
	res, err := ws.SlideWindow(ctx, key, clock.Seconds(now), window, limit)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: check %q: %w", domain.ErrBackendUnavailable, key, err)
	}

	dec := domain.Decision{Allowed: res.Allowed, Limit: limit, ResetAt: now.Add(window)}
	if res.Count > 0 {
		dec.ResetAt = clock.FromSeconds(res.Oldest).Add(window)
	}
	if dec.Allowed {
		dec.Remaining = max(limit-res.Count, 0)
	} else {
		dec.RetryAfter = retryAfter(dec.ResetAt, now, window)
	}
	return dec, nil
}

func (c *SlidingWindowCounter) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

// resetAt é o registro mais antigo sobrevivente + window; sem registros, now + window.
// Usa o mínimo e não log[0]: workers com relógios diferentes podem gravar fora de ordem.
func resetAt(log domain.Log, now time.Time, window time.Duration) time.Time {
	if len(log) == 0 {
		return now.Add(window)
	}
	oldest := log[0]
	for _, ts := range log[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	return clock.FromSeconds(oldest).Add(window)
}

// retryAfter = clamp(reset - now, 0, window + 1s).
func retryAfter(reset, now time.Time, window time.Duration) time.Duration {
	d := reset.Sub(now)
	if d < 0 {
		return 0
	}
	if ceiling := window + time.Second; d > ceiling {
		return ceiling
	}
	return d
}
