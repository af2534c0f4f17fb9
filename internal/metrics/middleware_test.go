package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordisle/lexiforge/internal/cache"
)

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/lookup/serendipity", "/lookup/{word}"},
		{"/lookup/serendipity/stream", "/lookup/{word}/stream"},
		{"/search", "/search"},
		{"/search/serendipty/suggestions", "/search/{q}/suggestions"},
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.path), tt.path)
	}
}

func TestMiddleware_PreservesHandlerBehaviour(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup/bank", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestMiddleware_FlushPassesThrough(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must keep Flusher for SSE")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lookup/bank/stream", nil))
}

func TestPublishCacheStats(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := cache.New(cache.Config{DiskRoot: t.TempDir()}, logger)
	require.NoError(t, err)

	// Exercising the cache then publishing must not panic; gauge values
	// are asserted loosely because other tests share the registry.
	PublishCacheStats(c)
}
