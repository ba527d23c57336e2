package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"
)

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

func (p *blockingPool) InUse() int { return 1 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func (p *immediatePool) InUse() int { return p.acquired }

func TestConcurrencyGuard_AdmitsWhenNoPool(t *testing.T) {
	g := ConcurrencyGuard{}
	release, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	release()
}

func TestConcurrencyGuard_TimeoutIsOverCapacity(t *testing.T) {
	g := ConcurrencyGuard{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	_, err := g.Admit(context.Background())
	if !errors.Is(err, domain.ErrOverCapacity) {
		t.Fatalf("expected ErrOverCapacity, got %v", err)
	}
}

func TestConcurrencyGuard_CallerCancelIsNotOverCapacity(t *testing.T) {
	g := ConcurrencyGuard{Pool: &blockingPool{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Admit(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrencyGuard_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	g := ConcurrencyGuard{Pool: pool}

	if _, err := g.Admit(context.Background()); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
}
