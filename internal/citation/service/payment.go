package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"contrava/internal/citation/models"
	id "contrava/pkg/domain"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/platform/sentinel"
	"contrava/pkg/requestcontext"
)

// PaymentRequest records settlement of the full outstanding total.
type PaymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
	Amount    int64  `json:"amount"`
	Notes     string `json:"notes,omitempty"`
}

// RecordPayment settles a record. The amount must equal the outstanding
// total exactly and the record must be open with no payment attached.
//
// When a reference is supplied it is reserved for this record before the
// write, so a retried request whose first attempt committed is reported as
// AlreadyPaid instead of racing the state machine. A reservation taken for
// a write that then fails is released.
func (s *Service) RecordPayment(ctx context.Context, recordID id.RecordID, req PaymentRequest) (*models.Record, error) {
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment method is required")
	}
	reference := strings.TrimSpace(req.Reference)

	if reference != "" && s.payrefs != nil {
		reserved, err := s.payrefs.Reserve(ctx, recordID, reference)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserve payment reference")
		}
		if !reserved {
			return s.resolveDuplicateReference(ctx, recordID, reference)
		}
	}

	payment := models.Payment{
		ID:        id.NewPaymentID(),
		Method:    method,
		Reference: reference,
		Amount:    req.Amount,
		Notes:     strings.TrimSpace(req.Notes),
	}

	rec, err := s.transition(ctx, recordID, "payment", func(r *models.Record, now time.Time, actor string) error {
		if err := r.CanRecordPayment(req.Amount); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidState) && r.Status == models.StatusPayee {
				return s.duplicatePaymentError(r, reference)
			}
			return err
		}
		r.ApplyPayment(payment, now, actor)
		return nil
	})
	if err != nil {
		if reference != "" && s.payrefs != nil && !dErrors.HasCode(err, dErrors.CodeAlreadyPaid) {
			if relErr := s.payrefs.Release(ctx, recordID, reference); relErr != nil {
				s.logger.WarnContext(ctx, "payment reference release failed",
					"record_id", recordID.String(),
					"error", relErr,
				)
			}
		}
		return nil, err
	}

	s.recordPaymentMetrics(rec)
	s.logger.InfoContext(ctx, "payment recorded",
		"record_id", recordID.String(),
		"amount", payment.Amount,
		"method", payment.Method,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec, nil
}

// resolveDuplicateReference classifies a reference reservation miss. The
// reference was already taken for this record: if the committed payment on
// the record carries it, the caller is retrying an already-settled request.
func (s *Service) resolveDuplicateReference(ctx context.Context, recordID id.RecordID, reference string) (*models.Record, error) {
	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
	}
	return nil, s.duplicatePaymentError(rec, reference)
}

func (s *Service) duplicatePaymentError(rec *models.Record, reference string) error {
	if rec.Status == models.StatusPayee && rec.Payment != nil &&
		reference != "" && rec.Payment.Reference == reference {
		return dErrors.Newf(dErrors.CodeAlreadyPaid, "payment %s is already recorded for record %s", reference, rec.ID)
	}
	// Reference taken but the record is still payable: the holder's write is
	// in flight, so the caller may retry.
	if rec.Status.Open() {
		return dErrors.Newf(dErrors.CodeConflict, "payment %s is in progress for record %s", reference, rec.ID)
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot record payment while %s", rec.Status)
}

func (s *Service) recordPaymentMetrics(rec *models.Record) {
	if s.metrics == nil || rec.Payment == nil {
		return
	}
	s.metrics.RecordPayment(rec.Payment.Amount)
}
