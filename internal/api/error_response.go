package api

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the taxonomy kind plus a human-readable message.
// Suggestions is populated on not_found so clients can offer
// did-you-mean alternatives.
type ErrorDetail struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// writeError renders err as the envelope with the status its kind maps
// to. Unknown error types become internal.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, suggestions []string) {
	le, ok := err.(*lferrors.LookupError)
	if !ok {
		le = lferrors.Wrap(lferrors.KindInternal, err, "internal error")
	}
	if le.Kind != lferrors.KindNotFound {
		suggestions = nil
	}
	if le.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatSeconds(le.RetryAfter))
	}
	writeJSON(w, logger, le.HTTPStatusCode(), ErrorResponse{Error: ErrorDetail{
		Kind:        le.Kind,
		Message:     le.Message,
		Suggestions: suggestions,
	}})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response encode failed", slog.String("error", err.Error()))
	}
}
