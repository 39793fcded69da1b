// Package service implements the citation lifecycle engine.
//
// Every mutation goes through one compare-and-swap discipline: read the
// record, validate the transition against the live state, apply it to the
// copy, and write back with the previously read status as the guard. A
// concurrent writer makes the guard miss and the engine re-reads and
// retries; transition rules are re-validated against the fresh state, so an
// invalid request never changes anything regardless of interleaving.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	citationmetrics "contrava/internal/citation/metrics"
	"contrava/internal/citation/models"
	"contrava/internal/citation/payref"
	"contrava/internal/citation/store"
	"contrava/internal/directory"
	id "contrava/pkg/domain"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/platform/sentinel"
	"contrava/pkg/requestcontext"
)

const (
	// casAttempts bounds automatic Conflict retries. Conflicts are races,
	// not logic errors, so the engine absorbs a bounded number itself.
	casAttempts = 3
	casBackoff  = 10 * time.Millisecond
)

// errNoop signals that a transition already committed and the current state
// should be returned as success without writing.
var errNoop = errors.New("transition already applied")

// Service is the lifecycle engine.
type Service struct {
	records   store.RecordStore
	payrefs   payref.Store
	directory directory.Directory
	logger    *slog.Logger
	metrics   *citationmetrics.Metrics
	sleep     func(context.Context, time.Duration) error
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets module metrics.
func WithMetrics(m *citationmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDirectory sets the external driver/agent directory used at issuance.
func WithDirectory(d directory.Directory) Option {
	return func(s *Service) { s.directory = d }
}

// WithPayRefStore sets the payment reference reservation store.
func WithPayRefStore(p payref.Store) Option {
	return func(s *Service) { s.payrefs = p }
}

// New constructs the lifecycle engine.
func New(records store.RecordStore, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	s := &Service{
		records: records,
		logger:  slog.Default(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueRequest is the intake payload from the external issuance process.
type IssueRequest struct {
	PVNumber     string `json:"pvNumber"`
	VehiclePlate string `json:"vehiclePlate"`
	DriverRef    string `json:"driverRef"`
	// DriverName is used only when no directory is wired; with a directory
	// the display name always comes from the lookup.
	DriverName    string `json:"driverName,omitempty"`
	AgentRef      string `json:"agentRef"`
	PrecinctRef   string `json:"precinctRef"`
	Location      string `json:"location"`
	BaseAmount    int64  `json:"baseAmount"`
	PenaltyAmount *int64 `json:"penaltyAmount,omitempty"`
}

// Issue creates a record in CONSTATEE. The pvNumber must be unused; the
// driver display name is captured from the directory when one is wired.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.Record, error) {
	driverName := strings.TrimSpace(req.DriverName)
	if s.directory != nil && req.DriverRef != "" {
		driver, err := s.directory.Driver(ctx, req.DriverRef)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown driver reference %q", req.DriverRef)
		case err != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve driver reference")
		default:
			driverName = driver.FullName
		}
	}

	now := requestcontext.Now(ctx)
	rec, err := models.NewRecord(
		id.NewRecordID(),
		req.PVNumber, req.VehiclePlate, req.DriverRef, driverName,
		req.AgentRef, req.PrecinctRef, req.Location,
		req.BaseAmount, req.PenaltyAmount,
		now, requestcontext.Actor(ctx),
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
		}
		return nil, err
	}

	if err := s.records.Create(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "pv number %s is already issued", rec.PVNumber)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create record")
	}

	s.incrementTransition("issue")
	s.logger.InfoContext(ctx, "citation issued",
		"record_id", rec.ID.String(),
		"pv_number", rec.PVNumber,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec, nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, wrapRecordErr(err)
	}
	return rec, nil
}

// GetByPVNumber returns one record by its citation number.
func (s *Service) GetByPVNumber(ctx context.Context, pvNumber string) (*models.Record, error) {
	pvNumber = strings.TrimSpace(pvNumber)
	if pvNumber == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "pv number is required")
	}
	rec, err := s.records.GetByPVNumber(ctx, pvNumber)
	if err != nil {
		return nil, wrapRecordErr(err)
	}
	return rec, nil
}

// Validate transitions CONSTATEE -> VALIDEE.
func (s *Service) Validate(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.transition(ctx, recordID, "validate", func(r *models.Record, now time.Time, actor string) error {
		if err := r.CanValidate(); err != nil {
			return err
		}
		r.ApplyValidation(now, actor)
		return nil
	})
}

// Contest transitions an open record to CONTESTEE.
func (s *Service) Contest(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.transition(ctx, recordID, "contest", func(r *models.Record, now time.Time, actor string) error {
		if err := r.CanContest(); err != nil {
			return err
		}
		r.ApplyContest(now, actor)
		return nil
	})
}

// Cancel transitions an open or contested record to ANNULEE.
func (s *Service) Cancel(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.transition(ctx, recordID, "cancel", func(r *models.Record, now time.Time, actor string) error {
		if err := r.CanCancel(); err != nil {
			return err
		}
		r.ApplyCancellation(now, actor)
		return nil
	})
}

// Archive moves a paid or cancelled record out of the active working set.
// Archiving an already-archived record is a no-op success, which is what
// makes a retried archive after a committed-but-cancelled request safe.
func (s *Service) Archive(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.transition(ctx, recordID, "archive", func(r *models.Record, now time.Time, actor string) error {
		if r.Status == models.StatusArchivee {
			return errNoop
		}
		if err := r.CanArchive(); err != nil {
			return err
		}
		r.ApplyArchival(now, actor)
		return nil
	})
}

// Unarchive restores the status the record held immediately before
// archiving and clears archivedAt. A retried unarchive whose first attempt
// already committed returns the restored record as a no-op success.
func (s *Service) Unarchive(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.transition(ctx, recordID, "unarchive", func(r *models.Record, now time.Time, actor string) error {
		if r.Status != models.StatusArchivee && r.LastTransitionWasRestore() {
			return errNoop
		}
		if err := r.CanUnarchive(); err != nil {
			return err
		}
		r.ApplyRestore(now, actor)
		return nil
	})
}

// transition runs one read-validate-mutate-write cycle under the bounded
// compare-and-swap retry discipline shared by all lifecycle operations.
func (s *Service) transition(ctx context.Context, recordID id.RecordID, event string, apply func(*models.Record, time.Time, string) error) (*models.Record, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	for attempt := 0; ; attempt++ {
		rec, err := s.records.Get(ctx, recordID)
		if err != nil {
			return nil, wrapRecordErr(err)
		}

		expected := rec.Status
		if err := apply(rec, now, actor); err != nil {
			if errors.Is(err, errNoop) {
				return rec, nil
			}
			return nil, err
		}

		err = s.records.Put(ctx, rec, expected)
		if err == nil {
			s.observeTransition(start)
			s.incrementTransition(event)
			s.logger.InfoContext(ctx, "record transitioned",
				"record_id", recordID.String(),
				"event", event,
				"status", string(rec.Status),
				"request_id", requestcontext.RequestID(ctx),
			)
			return rec, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			if attempt+1 >= casAttempts {
				return nil, dErrors.Newf(dErrors.CodeConflict, "record %s is being modified concurrently", recordID)
			}
			s.incrementConflictRetry()
			if err := s.sleep(ctx, casBackoff<<attempt); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeConflict, "retry cancelled")
			}
			continue
		}
		return nil, wrapRecordErr(err)
	}
}

func wrapRecordErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "concurrent modification, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) incrementTransition(event string) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(event)
	}
}

func (s *Service) incrementConflictRetry() {
	if s.metrics != nil {
		s.metrics.IncrementConflictRetry()
	}
}

func (s *Service) observeTransition(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
	}
}
