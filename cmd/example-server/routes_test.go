package main

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"throttle-gateway/middleware/ratelimit"
	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
)

func newTestRouter(t *testing.T) (http.Handler, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	l := ratelimit.New(ratelimit.Options{
		Store: infra.NewMemoryStore(infra.WithClock(vc)),
		Clock: vc,
	})
	return newRouter(l, zerolog.Nop()), vc
}

func send(h http.Handler, method, path, user, role string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "192.0.2.50:3000"
	if user != "" {
		r.Header.Set("X-User-ID", user)
		r.Header.Set("X-User-Role", role)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestLogin_FiveAttemptsPerMinute(t *testing.T) {
	h, vc := newTestRouter(t)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send(h, http.MethodPost, "/auth/login", "", "").Code, "attempt %d", i+1)
	}
	w := send(h, http.MethodPost, "/auth/login", "", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get(ratelimit.HeaderRetryAfter))

	vc.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, send(h, http.MethodPost, "/auth/login", "", "").Code)
}

func TestExports_DecoratedViewsAreIndependent(t *testing.T) {
	h, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/exports/csv", "9", "").Code)
	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/exports/csv", "9", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, http.MethodGet, "/exports/csv", "9", "").Code)

	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/exports/pdf", "9", "").Code)
}

func TestStaffIsNeverThrottled(t *testing.T) {
	h, _ := newTestRouter(t)

	for i := 0; i < 30; i++ {
		w := send(h, http.MethodPost, "/auth/login", "1", "staff")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.Itoa(domain.Unlimited), w.Header().Get(ratelimit.HeaderLimit))
	}
}

func TestChatMessages_PerUserBucket(t *testing.T) {
	h, _ := newTestRouter(t)

	w := send(h, http.MethodPost, "/chat/rooms/42/messages", "5", "premium")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "300", w.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, "299", w.Header().Get(ratelimit.HeaderRemaining))

	w = send(h, http.MethodPost, "/chat/rooms/42/messages", "6", "")
	assert.Equal(t, "299", w.Header().Get(ratelimit.HeaderRemaining))
}

func TestAdminPanel_BurstGateIsInnermost(t *testing.T) {
	h, _ := newTestRouter(t)

	w := send(h, http.MethodGet, "/admin/", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	burst := domain.DefaultCategoryPolicy(domain.CategoryAdminPanelBurst)
	assert.Equal(t, strconv.Itoa(burst.Limit), w.Header().Get(ratelimit.HeaderLimit))
}
