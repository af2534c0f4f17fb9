// Package api exposes the lookup, search and streaming endpoints over
// HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wordisle/lexiforge/internal/metrics"
	"github.com/wordisle/lexiforge/internal/pipeline"
	"github.com/wordisle/lexiforge/internal/progress"
	"github.com/wordisle/lexiforge/internal/store"
)

// suggestionLimit caps the did-you-mean list on 404s and the
// suggestions endpoint.
const suggestionLimit = 5

// Handler serves the public API.
type Handler struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(p *pipeline.Pipeline, st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		store:    st,
		logger:   logger.With(slog.String("component", "api")),
	}
}

// Lookup handles GET /lookup/{word}.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")
	opts := lookupOptions(r)

	tracker := progress.NewTracker(progress.CategoryLookup)
	res, err := h.pipeline.Lookup(r.Context(), word, opts, tracker, nil)
	if err != nil {
		writeError(w, h.logger, err, h.suggestions(r, word))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res.Entry)
}

// Search handles GET /search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Kind:    "invalid_request",
			Message: "missing q parameter",
		}})
		return
	}

	results, err := h.pipeline.Resolver().Resolve(r.Context(), query)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if len(results) > 0 {
		metrics.SearchesTotal.WithLabelValues(string(results[0].Method)).Inc()
	}
	writeJSON(w, h.logger, http.StatusOK, results)
}

// Suggestions handles GET /search/{q}/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	query := r.PathValue("q")
	words := h.pipeline.Resolver().Suggest(r.Context(), query, suggestionLimit)
	if words == nil {
		words = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, words)
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. Readiness requires the store to
// answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"store":  err.Error(),
		})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// suggestions computes fuzzy alternatives for failed lookups.
func (h *Handler) suggestions(r *http.Request, word string) []string {
	return h.pipeline.Resolver().Suggest(r.Context(), word, suggestionLimit)
}

// lookupOptions parses the per-request query parameters.
func lookupOptions(r *http.Request) pipeline.Options {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force_refresh"))
	noAI, _ := strconv.ParseBool(q.Get("no_ai"))
	return pipeline.Options{
		ForceRefresh: force,
		NoAI:         noAI,
		Providers:    q["providers"],
		Languages:    q["languages"],
		Components:   q["components"],
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
