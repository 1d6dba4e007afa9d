package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/service"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/health"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/middleware"
)

const (
	serviceName    = "search"
	queryTimeout   = 30 * time.Second
	suggestMaxAge  = 30 * time.Second
	trendingMaxAge = time.Minute
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORS middleware.CORSConfig
	// AdminCIDRs restricts the reset endpoint; an empty list denies everyone.
	AdminCIDRs []string
	// PprofCIDRs enables /debug/pprof for these networks when non-empty.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	searchService *service.SearchService,
	admin IndexAdmin,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.GatewayIdentity)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	searchHandler := NewSearchHandler(searchService, logger)
	adminHandler := NewAdminHandler(admin, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(queryTimeout))

			r.Get("/", searchHandler.Search)
			r.Get("/public", searchHandler.SearchPublic)
			r.Get("/advanced", searchHandler.Advanced)
			r.Get("/users/{userId}", searchHandler.ByUser)
			r.Get("/similar/{id}", searchHandler.Similar)
			r.Get("/location", searchHandler.Location)
			r.With(middleware.CacheControl(suggestMaxAge)).Get("/suggest", searchHandler.Suggest)
			r.With(middleware.CacheControl(trendingMaxAge)).Get("/trending", searchHandler.Trending)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Get("/my-content", searchHandler.MyContent)
				r.Get("/recent", searchHandler.Recent)
			})
		})

		// Rebuilds may outlive the query timeout.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.With(middleware.IPAllowlist(cfg.AdminCIDRs, logger)).Post("/reset-index", adminHandler.ResetIndex)
			r.Post("/reindex", adminHandler.Reindex)
			r.Post("/sync/{id}", adminHandler.SyncOne)
		})
	})

	return r
}
