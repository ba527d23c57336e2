package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
)

// Gate compõe identidade + política + contador numa decisão allow/deny.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Gate struct {
	Counter domain.Counter
	Clock   clock.Clock
}

// Decide aplica a política p à identidade id no scope informado.
//
//   - Tier admin: atalho explícito, Allowed=true/Bypassed=true, nenhum acesso ao contador.
//   - Falha do contador: fail-open (Allowed=true, Degraded=true) e o erro volta
//     para quem chamou apenas para log; a decisão continua válida.
//   - Contenção (ErrContention): o store está de pé e a chave está quente, então
//     nega em vez de liberar; liberar aqui estouraria o limite.
func (g Gate) Decide(ctx context.Context, id domain.Identity, scope string, p domain.Policy) (domain.Decision, error) {
	now := g.now()

	if id.Tier == domain.TierAdmin {
		return domain.Decision{
			Allowed:   true,
			Bypassed:  true,
			Limit:     domain.Unlimited,
			Remaining: domain.Unlimited,
			ResetAt:   now.Add(bypassWindow(p)),
		}, nil
	}

	if g.Counter == nil {
		return domain.Decision{Allowed: true, Degraded: true, Limit: p.Limit},
			fmt.Errorf("%w: no counter configured", domain.ErrBackendUnavailable)
	}

	dec, err := g.Counter.Check(ctx, domain.NewKey(scope, id.Identifier), p.Limit, p.Window)
	if errors.Is(err, domain.ErrContention) {
		return domain.Decision{
			Limit:      p.Limit,
			ResetAt:    now.Add(p.Window),
			RetryAfter: contentionRetry,
		}, err
	}
	if err != nil {
		return domain.Decision{Allowed: true, Degraded: true, Limit: p.Limit}, err
	}
	return dec, nil
}

const contentionRetry = time.Second

// o tier admin não tem política própria; sem janela o reset anunciado seria "agora".
func bypassWindow(p domain.Policy) time.Duration {
	if p.Window <= 0 {
		return time.Minute
	}
	return p.Window
}

func (g Gate) now() time.Time {
	if g.Clock == nil {
		return time.Now()
	}
	return g.Clock.Now()
}
