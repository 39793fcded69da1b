// Package httpapi assembles the HTTP surface: middleware chain, citation
// routes, health, and the metrics endpoint.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contrava/internal/citation"
	"contrava/internal/platform/metrics"
	"contrava/internal/platform/middleware"
	"contrava/pkg/platform/middleware/metadata"
	"contrava/pkg/platform/middleware/requesttime"
)

// requestTimeout bounds every request including store round trips.
const requestTimeout = 30 * time.Second

// Deps holds everything the router mounts.
type Deps struct {
	Citation *citation.Handler
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Health reports readiness of backing stores; nil checks nothing.
	Health func(r *http.Request) error
}

// NewRouter wires all endpoints behind the shared middleware chain.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(metadata.ClientMetadata)
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Actor)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)
	if deps.Metrics != nil {
		r.Use(middleware.HTTPMetrics(deps.Metrics))
	}
	r.Use(middleware.Logger(deps.Logger))

	deps.Citation.Register(r)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func healthHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
