package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultgate/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether the API key is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Get("/vault", h.ListDir)
	r.Get("/vault/*", h.GetDocument)
	r.Post("/vault/*", h.CreateDocument)
	r.Patch("/vault/*", h.PatchDocument)
	r.Delete("/vault/*", h.DeleteDocument)
	r.Post("/append/*", h.AppendDocument)

	// Search.
	r.Post("/search/simple", h.Search)
	r.Post("/search", h.AdvancedSearch)
	r.Post("/search/", h.AdvancedSearch)

	// History.
	r.Get("/history", h.History)
	r.Delete("/history", h.ClearHistory)
	r.Get("/history/{seq}", h.HistoryEntry)
	r.Post("/history/{seq}/revert", h.Revert)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
