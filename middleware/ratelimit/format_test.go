package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"throttle-gateway/middleware/ratelimit/domain"
)

func TestResetUnix_RoundsUp(t *testing.T) {
	assert.Equal(t, epoch.Unix(), ResetUnix(epoch))
	assert.Equal(t, epoch.Unix()+1, ResetUnix(epoch.Add(time.Millisecond)))
}

func TestRetryAfterSeconds_MinimumOne(t *testing.T) {
	assert.EqualValues(t, 1, RetryAfterSeconds(0))
	assert.EqualValues(t, 1, RetryAfterSeconds(200*time.Millisecond))
	assert.EqualValues(t, 2, RetryAfterSeconds(1500*time.Millisecond))
	assert.EqualValues(t, 60, RetryAfterSeconds(time.Minute))
}

func TestWriteHeaders_DeniedSetsRetryAfter(t *testing.T) {
	h := http.Header{}
	WriteHeaders(h, domain.Decision{Limit: 3, Remaining: 0, ResetAt: epoch, RetryAfter: 2500 * time.Millisecond})

	assert.Equal(t, "3", h.Get(HeaderLimit))
	assert.Equal(t, "0", h.Get(HeaderRemaining))
	assert.Equal(t, "3", h.Get(HeaderRetryAfter))
}

func TestWriteHeaders_DegradedWritesNothing(t *testing.T) {
	h := http.Header{}
	WriteHeaders(h, domain.Decision{Allowed: true, Degraded: true, Limit: 3})
	assert.Empty(t, h)
}
