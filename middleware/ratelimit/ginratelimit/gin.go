// Package ginratelimit adapta o Limiter para aplicações gin.
//
// Mesma semântica dos middlewares net/http (chaves, headers, 429, fail-open);
// só muda a forma de abortar a cadeia.
package ginratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"throttle-gateway/middleware/ratelimit"
	"throttle-gateway/middleware/ratelimit/domain"
)

// SetPrincipal registra o usuário autenticado para os gates seguintes.
// Deve ser chamado pelo middleware de autenticação antes dos limites.
func SetPrincipal(c *gin.Context, p domain.Principal) {
	c.Request = c.Request.WithContext(ratelimit.WithPrincipal(c.Request.Context(), p))
}

func Tiered(l *ratelimit.Limiter) gin.HandlerFunc {
	pols := l.Policies()
	return guard(l, func(id domain.Identity) (string, domain.Policy) {
		p, _ := pols.Tier(id.Tier)
		return id.Tier.Scope(), p
	})
}

func Endpoint(l *ratelimit.Limiter, cat domain.Category) gin.HandlerFunc {
	p := l.Policies().Category(cat)
	return guard(l, func(domain.Identity) (string, domain.Policy) { return cat.Scope(), p })
}

// RateLimit segue as regras do Limiter.RateLimit (scope vazio => "default", política inválida => panic).
func RateLimit(l *ratelimit.Limiter, limit int, window time.Duration, scope string) gin.HandlerFunc {
	p := domain.Policy{Limit: limit, Window: window}
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("ratelimit: RateLimit(%d, %s, %q): %v", limit, window, scope, err))
	}
	if scope == "" {
		scope = domain.DefaultScope
	}
	return guard(l, func(domain.Identity) (string, domain.Policy) { return scope, p })
}

func guard(l *ratelimit.Limiter, pick func(domain.Identity) (string, domain.Policy)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := l.Identify(c.Request)
		scope, p := pick(id)

		dec := l.Check(c.Request, id, scope, p)
		ratelimit.WriteHeaders(c.Writer.Header(), dec)
		if !dec.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"scope":       scope,
				"retry_after": ratelimit.RetryAfterSeconds(dec.RetryAfter),
			})
			return
		}
		c.Next()
	}
}
