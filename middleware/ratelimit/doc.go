// Package ratelimit fornece adapters HTTP (net/http) para rate limit por janela deslizante
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (identidade, política, decisão, store compartilhado), sem net/http
//   - application: contador de janela deslizante, gate (bypass admin, fail-open) e guarda de concorrência
//   - infra: stores concretos (memória, Redis) e estatísticas (memória, Redis, SQL)
//   - ratelimit (este pacote): resolução de identidade + tradução da decisão para headers/status
//
// Três formas de aplicar o limite, todas pelo mesmo Limiter:
//
//	l := ratelimit.New(ratelimit.Options{Store: store})
//	r.Use(l.Tiered())                                  // anon/user/premium; admin passa direto
//	r.With(l.Endpoint(domain.CategoryLogin)).Post(...) // política por categoria de endpoint
//	r.With(l.RateLimit(2, time.Minute, "export")).Get(...)
//
// Cada gate usa a chave "scope:identifier" e é independente dos demais; gates aninhados
// consomem cada um o seu bucket. Se o store falhar, a requisição passa (fail-open) sem
// headers X-RateLimit-*.
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_STORE, REDIS_ADDR, RATE_POLICY_FILE, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
