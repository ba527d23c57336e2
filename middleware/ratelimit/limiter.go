package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"throttle-gateway/middleware/ratelimit/application"
	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
)

// Options configura o Limiter.
//
// Só Store (ou Counter) é realmente necessário; o resto tem default.
type Options struct {
	// Store é o armazenamento compartilhado usado pelo contador de janela deslizante.
	Store domain.SharedStore
	// Counter substitui o contador padrão (ignora Store). Útil em testes.
	Counter domain.Counter

	// Policies nil => domain.DefaultPolicies().
	Policies *domain.Policies

	// Principal nil => PrincipalFromContext.
	Principal          PrincipalFunc
	IgnoreForwardedFor bool

	// Stats é opcional e best-effort.
	Stats domain.StatsStore

	Logger *zerolog.Logger
	Clock  clock.Clock
}

// Limiter concentra o wiring HTTP: resolve identidade, consulta o gate,
// escreve headers e traduz bloqueio em 429.
type Limiter struct {
	gate     application.Gate
	policies domain.Policies
	resolver Resolver
	stats    domain.StatsStore
	logger   zerolog.Logger
	clock    clock.Clock

	// logs de fail-open/stats podem virar enxurrada quando o Redis cai
	degradedLog rate.Sometimes
	statsLog    rate.Sometimes
}

func New(opts Options) *Limiter {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	policies := domain.DefaultPolicies()
	if opts.Policies != nil {
		policies = *opts.Policies
	}

	principal := opts.Principal
	if principal == nil {
		principal = PrincipalFromContext
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	counter := opts.Counter
	if counter == nil && opts.Store != nil {
		counter = application.NewSlidingWindowCounter(opts.Store, clk)
	}

	return &Limiter{
		gate:     application.Gate{Counter: counter, Clock: clk},
		policies: policies,
		resolver: Resolver{Principal: principal, IgnoreForwardedFor: opts.IgnoreForwardedFor},
		stats:    opts.Stats,
		logger:   logger,
		clock:    clk,

		degradedLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		statsLog:    rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// Middleware é o atalho para o gate por tier com as opções dadas.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	return New(opts).Tiered()
}

func (l *Limiter) Policies() domain.Policies { return l.policies }

// Identify resolve a identidade da requisição.
func (l *Limiter) Identify(r *http.Request) domain.Identity {
	return l.resolver.Resolve(r)
}

// Check decide uma requisição contra (scope, p) e faz os efeitos colaterais
// de observabilidade (log, stats, evento no span). Não escreve nada na resposta.
func (l *Limiter) Check(r *http.Request, id domain.Identity, scope string, p domain.Policy) domain.Decision {
	ctx := r.Context()

	dec, err := l.gate.Decide(ctx, id, scope, p)
	if err != nil {
		msg := "rate limit backend unavailable, failing open"
		if !dec.Allowed {
			msg = "rate limit store contention, denying"
		}
		l.degradedLog.Do(func() {
			l.loggerFor(ctx).Warn().Err(err).
				Str("scope", scope).
				Str("identifier", id.Identifier).
				Msg(msg)
		})
	}

	annotateSpan(ctx, id, scope, dec)
	l.record(ctx, r, id, scope, dec)

	if !dec.Allowed {
		l.loggerFor(ctx).Debug().
			Str("scope", scope).
			Str("identifier", id.Identifier).
			Str("tier", id.Tier.String()).
			Int("limit", dec.Limit).
			Dur("retry_after", dec.RetryAfter).
			Msg("rate limited")
	}
	return dec
}

// Tiered aplica a política do tier da identidade (anon/user/premium; admin passa direto).
func (l *Limiter) Tiered() func(next http.Handler) http.Handler {
	return l.guard(func(id domain.Identity) (string, domain.Policy) {
		p, _ := l.policies.Tier(id.Tier)
		return id.Tier.Scope(), p
	})
}

// Endpoint aplica a política de uma categoria de endpoint, independente do tier.
func (l *Limiter) Endpoint(c domain.Category) func(next http.Handler) http.Handler {
	p := l.policies.Category(c)
	scope := c.Scope()
	return l.guard(func(domain.Identity) (string, domain.Policy) {
		return scope, p
	})
}

// RateLimit é o gate ad-hoc: limit requisições por window, com bucket próprio (scope).
// scope vazio vira "default". Política inválida é erro de programação e dá panic.
func (l *Limiter) RateLimit(limit int, window time.Duration, scope string) func(next http.Handler) http.Handler {
	p := domain.Policy{Limit: limit, Window: window}
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("ratelimit: RateLimit(%d, %s, %q): %v", limit, window, scope, err))
	}
	if scope == "" {
		scope = domain.DefaultScope
	}
	return l.guard(func(domain.Identity) (string, domain.Policy) {
		return scope, p
	})
}

func (l *Limiter) guard(pick func(domain.Identity) (string, domain.Policy)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := l.Identify(r)
			scope, p := pick(id)

			dec := l.Check(r, id, scope, p)
			WriteHeaders(w.Header(), dec)
			if !dec.Allowed {
				WriteTooManyRequests(w, scope, dec)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) record(ctx context.Context, r *http.Request, id domain.Identity, scope string, dec domain.Decision) {
	if l.stats == nil {
		return
	}
	ev := domain.StatsEvent{
		Key:      domain.NewKey(scope, id.Identifier),
		Scope:    scope,
		Tier:     id.Tier,
		Allowed:  dec.Allowed,
		Bypassed: dec.Bypassed,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       l.clock.Now(),
	}
	if err := l.stats.Record(ctx, ev); err != nil {
		l.statsLog.Do(func() {
			l.loggerFor(ctx).Warn().Err(err).Str("scope", scope).Msg("rate limit stats not recorded")
		})
	}
}

// loggerFor prefere o logger do request (request id etc.), se houver.
func (l *Limiter) loggerFor(ctx context.Context) *zerolog.Logger {
	if lg := zerolog.Ctx(ctx); lg.GetLevel() != zerolog.Disabled {
		return lg
	}
	return &l.logger
}

func annotateSpan(ctx context.Context, id domain.Identity, scope string, dec domain.Decision) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("ratelimit.decision", trace.WithAttributes(
		attribute.String("ratelimit.scope", scope),
		attribute.String("ratelimit.identifier", id.Identifier),
		attribute.String("ratelimit.tier", id.Tier.String()),
		attribute.Bool("ratelimit.allowed", dec.Allowed),
		attribute.Bool("ratelimit.bypassed", dec.Bypassed),
		attribute.Bool("ratelimit.degraded", dec.Degraded),
		attribute.Int("ratelimit.remaining", dec.Remaining),
	))
}
