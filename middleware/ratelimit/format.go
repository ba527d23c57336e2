// utilitários pequenos para formatação de headers e corpo das respostas de bloqueio.

package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// WriteHeaders escreve os headers X-RateLimit-* da decisão.
//
// Decisões degradadas (fail-open) não escrevem nada: não há contagem real para anunciar.
// Gates aninhados sobrescrevem os headers do gate externo; vale o mais interno.
func WriteHeaders(h http.Header, dec domain.Decision) {
	if dec.Degraded {
		return
	}
	h.Set(HeaderLimit, formatInt(dec.Limit))
	h.Set(HeaderRemaining, formatInt(max(dec.Remaining, 0)))
	h.Set(HeaderReset, formatInt64(ResetUnix(dec.ResetAt)))
	if !dec.Allowed {
		h.Set(HeaderRetryAfter, formatInt64(RetryAfterSeconds(dec.RetryAfter)))
	} else {
		h.Del(HeaderRetryAfter)
	}
}

// ResetUnix arredonda para cima: o cliente nunca deve ver um reset que ainda não aconteceu.
func ResetUnix(t time.Time) int64 {
	s := t.Unix()
	if t.Nanosecond() > 0 {
		s++
	}
	return s
}

// RetryAfterSeconds arredonda para cima, mínimo 1.
func RetryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

type errorBody struct {
	Error      string `json:"error"`
	Scope      string `json:"scope,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteTooManyRequests responde 429 com um corpo JSON curto.
func WriteTooManyRequests(w http.ResponseWriter, scope string, dec domain.Decision) {
	writeJSONError(w, http.StatusTooManyRequests, errorBody{
		Error:      "rate limit exceeded",
		Scope:      scope,
		RetryAfter: RetryAfterSeconds(dec.RetryAfter),
	})
}
