package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"throttle-gateway/middleware/ratelimit/domain"
)

// PrincipalFunc é o contrato com a camada de autenticação (externa):
// devolve o principal autenticado da requisição, ou ok=false se anônimo.
type PrincipalFunc func(r *http.Request) (domain.Principal, bool)

type principalKey struct{}

// WithPrincipal anexa o principal ao contexto. É o que o middleware de
// autenticação da aplicação deve chamar antes dos gates.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext é o PrincipalFunc padrão.
func PrincipalFromContext(r *http.Request) (domain.Principal, bool) {
	p, ok := r.Context().Value(principalKey{}).(domain.Principal)
	return p, ok && p.ID != ""
}

// Resolver deriva (identifier, tier) da requisição. Não faz I/O e nunca falha.
type Resolver struct {
	Principal PrincipalFunc
	// IgnoreForwardedFor desliga o uso do X-Forwarded-For (quando não há proxy confiável na frente).
	IgnoreForwardedFor bool
}

func (rv Resolver) Resolve(r *http.Request) domain.Identity {
	if rv.Principal != nil {
		if p, ok := rv.Principal(r); ok && p.ID != "" {
			return domain.IdentityFor(p)
		}
	}
	return domain.AnonymousIdentity(ClientIP(r, !rv.IgnoreForwardedFor))
}

// ClientIP prefere o primeiro IP do X-Forwarded-For (cliente original) e cai
// para o RemoteAddr se o header faltar ou não for um IP válido.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if ip, ok := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ok {
			return ip
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func firstForwardedIP(xff string) (string, bool) {
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return "", false
	}
	// alguns proxies mandam "ip:porta" ou "[v6]:porta"
	if host, _, err := net.SplitHostPort(first); err == nil {
		first = host
	}
	ip := net.ParseIP(first)
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}
