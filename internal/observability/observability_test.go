package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name  string
		in    string
		want  string
		leaks string
	}{
		{
			name:  "llm key",
			in:    "auth failed for sk-abcdefghijklmnopqrstuvwx",
			leaks: "sk-abcdefghijklmnopqrstuvwx",
		},
		{
			name:  "bearer token",
			in:    "header Bearer eyJhbGciOi.payload.sig rejected",
			leaks: "eyJhbGciOi",
		},
		{
			name:  "wordnik query key",
			in:    "GET /word.json/bank?api_key=abc123def",
			leaks: "abc123def",
		},
		{
			name: "plain text untouched",
			in:   "lookup complete for bank",
			want: "lookup complete for bank",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Redact(tt.in)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			if tt.leaks != "" {
				assert.NotContains(t, got, tt.leaks)
			}
		})
	}
}

func TestRedactHeaders(t *testing.T) {
	r := NewRedactor()
	out := r.RedactHeaders(map[string][]string{
		"Authorization": {"Bearer secret"},
		"Accept":        {"application/json"},
	})
	assert.Equal(t, []string{"[REDACTED]"}, out["Authorization"])
	assert.Equal(t, []string{"application/json"}, out["Accept"])
}

func TestNewLogger_RedactsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf}, NewRedactor())

	logger.Info("llm request failed", "key", "sk-abcdefghijklmnopqrstuvwx")

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwx")
	assert.Contains(t, out, "REDACTED")
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "warn", Format: "text", Output: &buf}, nil)

	logger.Info("hidden")
	logger.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("honours valid inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "client-id-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "client-id-42", seen)
	})

	t.Run("rejects malformed inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id\nwith newline")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.NotEqual(t, "bad id\nwith newline", seen)
		assert.NotEmpty(t, seen)
	})
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	_, span := StartLookupSpan(context.Background(), tp.Tracer(), "bank")
	span.End()

	assert.NoError(t, tp.Shutdown(context.Background()))
}
