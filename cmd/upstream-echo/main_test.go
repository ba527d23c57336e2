package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoHandler(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/showTela", nil)
	r.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()

	echoHandler(zerolog.Nop()).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var got echoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/showTela", got.Path)
	assert.Equal(t, []string{"abc"}, got.Headers["X-Request-Id"])
}
