package application

import (
	"context"
	"fmt"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"
)

// ConcurrencyGuard concentra a regra de admissão por vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyGuard struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Admit tenta ocupar uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Sem vaga: ErrOverCapacity. Se foi o ctx do chamador que encerrou, devolve ctx.Err().
func (g ConcurrencyGuard) Admit(ctx context.Context) (release func(), err error) {
	if g.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if g.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, g.AcquireTimeout)
		defer cancel()
	}

	release, ok := g.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %d slots busy", domain.ErrOverCapacity, g.Pool.InUse())
}
