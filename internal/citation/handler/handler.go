// Package handler wires the citation lifecycle, query, and statistics
// services to their HTTP endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	citationmetrics "contrava/internal/citation/metrics"
	"contrava/internal/citation/models"
	"contrava/internal/citation/query"
	"contrava/internal/citation/service"
	"contrava/internal/citation/stats"
	id "contrava/pkg/domain"
	"contrava/pkg/platform/httputil"
	"contrava/pkg/requestcontext"
)

// Lifecycle defines the record mutations the transport exposes.
type Lifecycle interface {
	Issue(ctx context.Context, req service.IssueRequest) (*models.Record, error)
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Validate(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Contest(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Cancel(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	RecordPayment(ctx context.Context, recordID id.RecordID, req service.PaymentRequest) (*models.Record, error)
	Archive(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Unarchive(ctx context.Context, recordID id.RecordID) (*models.Record, error)
}

// Lister defines the paged record search.
type Lister interface {
	List(ctx context.Context, filter query.Filter) (*query.ResultPage, error)
}

// Summarizer defines the statistics view.
type Summarizer interface {
	Summarize(ctx context.Context, period query.PeriodPreset) (*stats.Summary, error)
}

// Handler wires citation endpoints to the citation services.
type Handler struct {
	lifecycle Lifecycle
	lister    Lister
	stats     Summarizer
	logger    *slog.Logger
	metrics   *citationmetrics.Metrics
}

// New constructs a citation handler with its dependencies.
func New(lifecycle Lifecycle, lister Lister, summarizer Summarizer, logger *slog.Logger, metrics *citationmetrics.Metrics) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		lister:    lister,
		stats:     summarizer,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register mounts citation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Post("/", h.HandleIssue)
		r.Get("/", h.HandleList)
		r.Route("/{recordID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/validate", h.transitionHandler("validate", h.lifecycle.Validate))
			r.Post("/contest", h.transitionHandler("contest", h.lifecycle.Contest))
			r.Post("/cancel", h.transitionHandler("cancel", h.lifecycle.Cancel))
			r.Post("/payment", h.HandlePayment)
			r.Post("/archive", h.transitionHandler("archive", h.lifecycle.Archive))
			r.Post("/unarchive", h.transitionHandler("unarchive", h.lifecycle.Unarchive))
		})
	})
	r.Get("/stats", h.HandleStats)
}

// HandleIssue handles POST /records.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.lifecycle.Issue(ctx, req.ToDomain())
	if err != nil {
		h.logger.WarnContext(ctx, "issue rejected",
			"request_id", requestID,
			"pv_number", req.PVNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// HandleGet handles GET /records/{recordID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.lifecycle.Get(ctx, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandlePayment handles POST /records/{recordID}/payment.
func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.lifecycle.RecordPayment(ctx, recordID, req.ToDomain())
	if err != nil {
		h.logger.WarnContext(ctx, "payment rejected",
			"request_id", requestID,
			"record_id", recordID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// transitionHandler builds the handler for the body-less transition
// endpoints, which differ only in the engine method they call.
func (h *Handler) transitionHandler(event string, apply func(context.Context, id.RecordID) (*models.Record, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		rec, err := apply(ctx, recordID)
		if err != nil {
			h.logger.WarnContext(ctx, "transition rejected",
				"request_id", requestcontext.RequestID(ctx),
				"record_id", recordID.String(),
				"event", event,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rec)
	}
}

// HandleList handles GET /records.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.lister.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "record list failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveList(start)
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period, err := query.ParsePeriodPreset(r.URL.Query().Get("period"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.stats.Summarize(ctx, period)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats summary failed",
			"request_id", requestcontext.RequestID(ctx),
			"period", string(period),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
