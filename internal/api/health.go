package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultgate/internal/noteservice"
)

// HealthRoutes returns the unauthenticated health endpoints.
// /health and /health/ready report upstream reachability; /health/live only
// reports that the process is serving.
func HealthRoutes(svc *noteservice.Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	upstream := func(w http.ResponseWriter, r *http.Request) {
		h, err := svc.Health(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Upstream: h})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Upstream: h})
	}
	r.Get("/", upstream)
	r.Get("/ready", upstream)
	return r
}
