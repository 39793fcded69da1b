// Package citation groups the record lifecycle, query, and statistics
// services behind one wiring surface.
package citation

import (
	"log/slog"

	"contrava/internal/citation/handler"
	"contrava/internal/citation/metrics"
	"contrava/internal/citation/query"
	"contrava/internal/citation/service"
	"contrava/internal/citation/stats"
	"contrava/internal/citation/store"
)

// Service is the record lifecycle engine.
type Service = service.Service

// QueryService is the paged record search.
type QueryService = query.Service

// StatsService computes period summaries.
type StatsService = stats.Service

// Handler wires HTTP endpoints to the citation services.
type Handler = handler.Handler

// Metrics holds the module's prometheus instruments.
type Metrics = metrics.Metrics

// NewService constructs the lifecycle engine with required dependencies.
func NewService(records store.RecordStore, opts ...service.Option) (*Service, error) {
	return service.New(records, opts...)
}

// NewQueryService constructs the record search service.
func NewQueryService(records store.RecordStore) (*QueryService, error) {
	return query.New(records)
}

// NewStatsService constructs the statistics service.
func NewStatsService(records store.RecordStore) (*StatsService, error) {
	return stats.New(records)
}

// NewHandler constructs an HTTP handler for citation routes.
func NewHandler(svc *Service, lister *QueryService, summarizer *StatsService, logger *slog.Logger, m *Metrics) *Handler {
	return handler.New(svc, lister, summarizer, logger, m)
}
