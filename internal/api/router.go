package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/kiranshivaraju/matchintel/internal/api/middleware"
	"github.com/kiranshivaraju/matchintel/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateAnalysis http.HandlerFunc
	ListAnalyses   http.HandlerFunc
	GetResult      http.HandlerFunc

	CreateExport   http.HandlerFunc
	ListExports    http.HandlerFunc
	GetExport      http.HandlerFunc
	DownloadExport http.HandlerFunc

	GetStatus http.HandlerFunc
	CancelJob http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/analyses", orNotImplemented(deps.CreateAnalysis))
		r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalyses))
		r.Get("/api/v1/analyses/{jobID}/result", orNotImplemented(deps.GetResult))

		r.Post("/api/v1/exports", orNotImplemented(deps.CreateExport))
		r.Get("/api/v1/exports", orNotImplemented(deps.ListExports))
		r.Get("/api/v1/exports/{jobID}", orNotImplemented(deps.GetExport))
		r.Get("/api/v1/exports/{jobID}/download", orNotImplemented(deps.DownloadExport))

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetStatus))
		r.Post("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
