package api

import "net/http"

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /lookup/{word}", h.Lookup)
	mux.HandleFunc("GET /lookup/{word}/stream", h.LookupStream)

	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /search/{q}/suggestions", h.Suggestions)

	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)
}
