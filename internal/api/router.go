package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/catcoverage/internal/coverage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *coverage.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Reports.
	r.Get("/coverage", h.Coverage)
	r.Get("/coverage/annotations", h.Annotations)
	r.Get("/coverage/collections", h.Collections)

	// Directories by annotation.
	r.Get("/annotations/{annotation}", h.AnnotationPaths)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
