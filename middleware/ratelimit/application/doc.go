// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain (e do relógio) e não conhece net/http.
// Ex.: SlidingWindowCounter.Check(key, limit, window) e Gate.Decide(identity,
// scope, policy) retornam uma Decision (allow/deny + remaining/reset/retry-after).
package application
