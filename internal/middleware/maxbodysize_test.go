package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/middleware"
)

// bodyReadingHandler reads the full body and answers 413 when the read fails,
// as a JSON-decoding handler would.
var bodyReadingHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if _, err := io.ReadAll(r.Body); err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	w.WriteHeader(http.StatusOK)
})

func TestMaxBodySizeHandler_SmallBody_PassesThrough(t *testing.T) {
	h := middleware.NewMaxBodySizeHandler(100)(bodyReadingHandler)

	req := httptest.NewRequest(http.MethodPost, "/equipment", strings.NewReader(strings.Repeat("x", 50)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMaxBodySizeHandler_ContentLengthExceedsLimit_Returns413(t *testing.T) {
	called := false
	h := middleware.NewMaxBodySizeHandler(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/equipment", strings.NewReader(strings.Repeat("x", 200)))
	req.ContentLength = 200
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestMaxBodySizeHandler_StreamingBodyExceedsLimit_Returns413(t *testing.T) {
	h := middleware.NewMaxBodySizeHandler(100)(bodyReadingHandler)

	req := httptest.NewRequest(http.MethodPost, "/equipment", strings.NewReader(strings.Repeat("x", 200)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
