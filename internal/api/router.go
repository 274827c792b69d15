package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/osservatorio-istat/osservatorio/internal/export"
	"github.com/osservatorio-istat/osservatorio/internal/ingestion"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/middleware"
	"github.com/osservatorio-istat/osservatorio/internal/powerbi"
	"github.com/osservatorio-istat/osservatorio/internal/repository"
)

// Config configures the router's CORS and per-credential rate limit, per
// §6.6's api.istat.rate_limit.
type Config struct {
	CORSAllowedOrigins []string
	RateLimitPerHour   int
}

// adapt lifts one of the teacher's http.HandlerFunc-in/out middlewares
// (RequestID, Compression, PrometheusMetrics) to chi's
// func(http.Handler) http.Handler shape.
func adapt(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// NewRouter assembles the full HTTP surface: §6.2's export API, the
// ingestion status/trigger endpoints, and the PowerBI surface of C7-C10,
// behind request-id, metrics, compression, CORS and per-credential rate
// limiting middleware.
func NewRouter(meta *metadata.Store, repo *repository.Repository, exportEngine *export.Engine, pipeline *ingestion.Pipeline, optimizer *powerbi.Optimizer, refresh *powerbi.RefreshManager, templateGen *powerbi.TemplateGenerator, bridge *powerbi.Bridge, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(adapt(middleware.RequestID))
	r.Use(adapt(middleware.PrometheusMetrics))
	r.Use(adapt(middleware.Compression))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	rateLimit := cfg.RateLimitPerHour
	if rateLimit <= 0 {
		rateLimit = 1000
	}
	r.Use(httprate.Limit(rateLimit, time.Hour, httprate.WithKeyFuncs(credentialRateLimitKey)))

	exportHandler := NewExportHandler(repo, exportEngine)
	ingestionHandler := NewIngestionHandler(pipeline)
	powerBIHandler := NewPowerBIHandler(optimizer, refresh, templateGen, bridge)

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasets/export/formats", exportHandler.Formats)

		r.Group(func(r chi.Router) {
			r.Use(RequireCredential(meta))

			r.Get("/datasets/{id}/export", exportHandler.Export)
			r.Get("/datasets/{id}/export/info", exportHandler.ExportInfo)

			r.Get("/ingestion/status", ingestionHandler.Status)
			r.Post("/ingestion/run", ingestionHandler.Run)

			r.Get("/powerbi/datasets/{id}/star-schema", powerBIHandler.StarSchema)
			r.Get("/powerbi/datasets/{id}/dax-measures", powerBIHandler.DaxMeasures)
			r.Get("/powerbi/datasets/{id}/performance-estimate", powerBIHandler.PerformanceEstimate)
			r.Get("/powerbi/datasets/{id}/refresh-policy", powerBIHandler.GetRefreshPolicy)
			r.Put("/powerbi/datasets/{id}/refresh-policy", powerBIHandler.PutRefreshPolicy)
			r.Post("/powerbi/datasets/{id}/refresh", powerBIHandler.ExecuteRefresh)
			r.Get("/powerbi/datasets/{id}/refresh-status", powerBIHandler.RefreshStatus)
			r.Post("/powerbi/datasets/{id}/template", powerBIHandler.Template)
			r.Get("/powerbi/datasets/{id}/governance", powerBIHandler.Governance)
			r.Get("/powerbi/governance", powerBIHandler.Governance)
		})
	})

	return r
}
