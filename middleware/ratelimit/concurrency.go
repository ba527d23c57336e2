package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"throttle-gateway/middleware/ratelimit/application"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
)

// ConcurrencyOptions limita quantas requisições ficam em voo ao mesmo tempo.
// É independente do rate limit: protege o upstream de rajadas lentas.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zerolog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	guard := application.ConcurrencyGuard{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := guard.Admit(r.Context())
			if err != nil {
				if !errors.Is(err, domain.ErrOverCapacity) {
					// cliente desistiu; não há para quem responder
					return
				}
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
				writeJSONError(w, opts.RejectStatus, errorBody{Error: "server busy"})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
