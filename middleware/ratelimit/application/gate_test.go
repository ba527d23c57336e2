package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
)

func TestGate_AdminBypassNeverTouchesStore(t *testing.T) {
	store := newFakeStore()
	vc := clock.NewVirtual(epoch)
	g := Gate{Counter: NewSlidingWindowCounter(store, vc), Clock: vc}
	admin := domain.IdentityFor(domain.Principal{ID: "1", Staff: true})

	for i := 0; i < 1000; i++ {
		dec, err := g.Decide(context.Background(), admin, "login", domain.Policy{Limit: 1, Window: time.Minute})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed || !dec.Bypassed {
			t.Fatalf("admin request %d should bypass, got %+v", i, dec)
		}
		if dec.Limit != domain.Unlimited || dec.Remaining != domain.Unlimited {
			t.Fatalf("expected unlimited budget, got %+v", dec)
		}
	}
	if n := store.calls.Load(); n != 0 {
		t.Fatalf("admin traffic must not reach the store, got %d calls", n)
	}
}

func TestGate_FailsOpenOnStoreError(t *testing.T) {
	g := Gate{Counter: NewSlidingWindowCounter(failingStore{}, nil)}

	dec, err := g.Decide(context.Background(), domain.AnonymousIdentity("10.0.0.1"), "anon", domain.Policy{Limit: 1, Window: time.Minute})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected the error to be reported for logging, got %v", err)
	}
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("expected fail-open decision, got %+v", dec)
	}
}

func TestGate_NoCounterFailsOpenWithError(t *testing.T) {
	dec, err := Gate{}.Decide(context.Background(), domain.AnonymousIdentity("k"), "anon", domain.Policy{Limit: 1, Window: time.Second})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable so the caller logs it, got %v", err)
	}
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("expected fail-open decision, got %+v", dec)
	}
	if dec.Limit != 1 {
		t.Fatalf("expected policy limit on degraded decision, got %d", dec.Limit)
	}
}

// contendedStore nunca converge o CAS, como uma chave quente no Redis.
type contendedStore struct{}

func (contendedStore) AtomicUpdate(context.Context, domain.Key, time.Duration, domain.TransformFunc) (domain.Log, error) {
	return nil, domain.ErrContention
}

func TestGate_DeniesOnContention(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	g := Gate{Counter: NewSlidingWindowCounter(contendedStore{}, vc), Clock: vc}
	p := domain.Policy{Limit: 5, Window: time.Minute}

	dec, err := g.Decide(context.Background(), domain.AnonymousIdentity("10.0.0.1"), "anon", p)
	if !errors.Is(err, domain.ErrContention) {
		t.Fatalf("expected ErrContention to be reported, got %v", err)
	}
	if dec.Allowed || dec.Degraded {
		t.Fatalf("contention must deny, not fail open: %+v", dec)
	}
	if dec.Limit != 5 || dec.Remaining != 0 {
		t.Fatalf("unexpected budget on contention: %+v", dec)
	}
	if dec.RetryAfter <= 0 || !dec.ResetAt.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("expected retry hint and reset at now+window, got %+v", dec)
	}
}

func TestGate_ScopesAreIndependentBuckets(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	g := Gate{Counter: NewSlidingWindowCounter(newFakeStore(), vc), Clock: vc}
	id := domain.IdentityFor(domain.Principal{ID: "42"})
	p := domain.Policy{Limit: 1, Window: time.Minute}

	if dec, _ := g.Decide(context.Background(), id, "user", p); !dec.Allowed {
		t.Fatalf("first tiered request should pass")
	}
	if dec, _ := g.Decide(context.Background(), id, "user", p); dec.Allowed {
		t.Fatalf("second tiered request should be rejected")
	}
	if dec, _ := g.Decide(context.Background(), id, "search", p); !dec.Allowed {
		t.Fatalf("a different scope must have its own window")
	}
}
