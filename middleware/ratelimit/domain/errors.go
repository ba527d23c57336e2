package domain

import "errors"

var (
	// ErrBackendUnavailable cobre qualquer falha do store compartilhado.
	// O gate trata como fail-open.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
	// ErrContention indica que o CAS não convergiu dentro do número de tentativas.
	ErrContention    = errors.New("rate limit store contention")
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)

// ErrOverCapacity indica que não houve vaga no limite de concorrência.
var ErrOverCapacity = errors.New("too many requests in flight")
