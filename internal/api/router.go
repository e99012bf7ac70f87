package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scanvault/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Write side.
	r.Post("/scans", h.IngestScan)
	r.Post("/operations", h.ApplyOperations)
	r.Post("/sync", h.Sync)

	// Read side.
	r.Get("/notes/*", h.GetNote)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/search", h.Search)
	r.Get("/scans", h.ListScans)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
