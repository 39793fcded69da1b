package models

import (
	"strings"
	"time"

	id "contrava/pkg/domain"
	dErrors "contrava/pkg/domain-errors"
)

// Record is the aggregate root for one traffic-violation citation.
//
// Invariants:
//   - Status changes only through the Can*/Apply* pairs below; no caller
//     writes Status directly
//   - Payment is non-nil iff Status == PAYEE, or Status == ARCHIVEE and the
//     record was archived from PAYEE
//   - ArchivedAt is non-nil iff Status == ARCHIVEE
//   - History always has at least one entry (creation records the initial
//     transition into CONSTATEE) and is append-only
//   - BaseAmount > 0; PenaltyAmount, when present, >= 0
//
// PVNumber, VehiclePlate, DriverRef, AgentRef, PrecinctRef, Location,
// BaseAmount, and IssuedAt are immutable once issued. Records are never
// physically deleted; ARCHIVEE is the terminal state and unarchive restores
// the status held immediately before archiving.
type Record struct {
	ID           id.RecordID `json:"id"`
	PVNumber     string      `json:"pvNumber"`
	VehiclePlate string      `json:"vehiclePlate"`
	DriverRef    string      `json:"driverRef"`
	// DriverName is a display-only copy captured from the directory at
	// issuance. It exists so free-text search does not need a join to an
	// external system; the directory stays the source of truth.
	DriverName    string         `json:"driverName,omitempty"`
	AgentRef      string         `json:"agentRef"`
	PrecinctRef   string         `json:"precinctRef"`
	Location      string         `json:"location"`
	BaseAmount    int64          `json:"baseAmount"`
	PenaltyAmount *int64         `json:"penaltyAmount,omitempty"`
	IssuedAt      time.Time      `json:"issuedAt"`
	Status        Status         `json:"status"`
	Payment       *Payment       `json:"payment,omitempty"`
	ArchivedAt    *time.Time     `json:"archivedAt,omitempty"`
	History       []HistoryEntry `json:"statusHistory"`
}

// Payment is the money captured against a record. Present only once payment
// occurs; never mutated afterwards.
type Payment struct {
	ID         id.PaymentID `json:"id"`
	Method     string       `json:"method"`
	Reference  string       `json:"reference,omitempty"`
	Amount     int64        `json:"amount"`
	Notes      string       `json:"notes,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// HistoryEntry is one entry in the append-only audit trail. From records the
// status held before the transition; the ARCHIVEE entry's From is what
// unarchive restores.
type HistoryEntry struct {
	Status Status    `json:"status"`
	From   Status    `json:"from,omitempty"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
}

// NewRecord constructs a record in CONSTATEE with its initial history entry.
// Issuance fields are validated here so no record ever exists in a state
// that violates the invariants above.
func NewRecord(recordID id.RecordID, pvNumber, vehiclePlate, driverRef, driverName, agentRef, precinctRef, location string, baseAmount int64, penaltyAmount *int64, issuedAt time.Time, actor string) (*Record, error) {
	pvNumber = strings.TrimSpace(pvNumber)
	if pvNumber == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pv number is required")
	}
	if strings.TrimSpace(vehiclePlate) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vehicle plate is required")
	}
	if baseAmount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "base amount must be positive")
	}
	if penaltyAmount != nil && *penaltyAmount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "penalty amount must not be negative")
	}

	return &Record{
		ID:            recordID,
		PVNumber:      pvNumber,
		VehiclePlate:  strings.TrimSpace(vehiclePlate),
		DriverRef:     driverRef,
		DriverName:    driverName,
		AgentRef:      agentRef,
		PrecinctRef:   precinctRef,
		Location:      location,
		BaseAmount:    baseAmount,
		PenaltyAmount: penaltyAmount,
		IssuedAt:      issuedAt,
		Status:        StatusConstatee,
		History: []HistoryEntry{
			{Status: StatusConstatee, At: issuedAt, Actor: actor},
		},
	}, nil
}

// OutstandingTotal is the amount a payment must tender: base plus penalty.
func (r *Record) OutstandingTotal() int64 {
	total := r.BaseAmount
	if r.PenaltyAmount != nil {
		total += *r.PenaltyAmount
	}
	return total
}

// CanValidate checks the CONSTATEE -> VALIDEE transition.
func (r *Record) CanValidate() error {
	return r.checkTransition(StatusValidee, "validate")
}

// ApplyValidation transitions the record to VALIDEE.
// Call CanValidate first to validate the transition.
func (r *Record) ApplyValidation(now time.Time, actor string) {
	r.applyStatus(StatusValidee, now, actor)
}

// CanContest checks the contest transition from an open status.
func (r *Record) CanContest() error {
	return r.checkTransition(StatusContestee, "contest")
}

// ApplyContest transitions the record to CONTESTEE.
func (r *Record) ApplyContest(now time.Time, actor string) {
	r.applyStatus(StatusContestee, now, actor)
}

// CanCancel checks the cancel transition. Open and contested records may be
// cancelled; paid and archived records may not.
func (r *Record) CanCancel() error {
	return r.checkTransition(StatusAnnulee, "cancel")
}

// ApplyCancellation transitions the record to ANNULEE.
func (r *Record) ApplyCancellation(now time.Time, actor string) {
	r.applyStatus(StatusAnnulee, now, actor)
}

// CanRecordPayment checks the payment guards: the record must be in an open
// status, carry no prior payment, and the tendered amount must equal the
// outstanding total exactly.
func (r *Record) CanRecordPayment(amount int64) error {
	if !r.Status.Open() {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot record payment while %s", r.Status)
	}
	if r.Payment != nil {
		return dErrors.New(dErrors.CodeInvalidState, "record already carries a payment")
	}
	if amount != r.OutstandingTotal() {
		return dErrors.Newf(dErrors.CodeAmountMismatch, "amount %d does not match outstanding total %d", amount, r.OutstandingTotal())
	}
	return nil
}

// ApplyPayment transitions the record to PAYEE and attaches the payment.
// Call CanRecordPayment first to validate the guards.
func (r *Record) ApplyPayment(p Payment, now time.Time, actor string) {
	p.RecordedAt = now
	r.Payment = &p
	r.applyStatus(StatusPayee, now, actor)
}

// CanArchive checks that the record is closed (paid or cancelled).
func (r *Record) CanArchive() error {
	if !r.Status.Archivable() {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot archive while %s", r.Status)
	}
	return nil
}

// ApplyArchival transitions the record to ARCHIVEE. The history entry keeps
// the pre-archival status so ApplyRestore can find it without scanning.
func (r *Record) ApplyArchival(now time.Time, actor string) {
	r.applyStatus(StatusArchivee, now, actor)
	r.ArchivedAt = &now
}

// CanUnarchive checks that the record is currently archived.
func (r *Record) CanUnarchive() error {
	if r.Status != StatusArchivee {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot unarchive while %s", r.Status)
	}
	return nil
}

// ApplyRestore returns the record to the status it held immediately before
// archiving and clears ArchivedAt. Every other field, the payment included,
// is untouched; archive then unarchive is a round-trip.
func (r *Record) ApplyRestore(now time.Time, actor string) {
	restored := r.PreArchivalStatus()
	r.applyStatus(restored, now, actor)
	r.ArchivedAt = nil
}

// PreArchivalStatus returns the status recorded when the record was last
// archived. Defined only while Status == ARCHIVEE.
func (r *Record) PreArchivalStatus() Status {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Status == StatusArchivee {
			return r.History[i].From
		}
	}
	// Unreachable while the archival invariant holds; ANNULEE is the safe
	// restoration for a record with no payment.
	if r.Payment != nil {
		return StatusPayee
	}
	return StatusAnnulee
}

// LastTransitionWasRestore reports whether the most recent history entry is
// an unarchive. Used to recognize a retried unarchive that already
// committed.
func (r *Record) LastTransitionWasRestore() bool {
	if len(r.History) < 2 {
		return false
	}
	last := r.History[len(r.History)-1]
	return last.From == StatusArchivee && last.Status != StatusArchivee
}

func (r *Record) checkTransition(target Status, verb string) error {
	if !r.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s while %s", verb, r.Status)
	}
	return nil
}

func (r *Record) applyStatus(target Status, now time.Time, actor string) {
	r.History = append(r.History, HistoryEntry{
		Status: target,
		From:   r.Status,
		At:     now,
		Actor:  actor,
	})
	r.Status = target
}

// Clone returns a deep copy. Stores clone on every read/write boundary so
// callers can never alias store-owned state.
func (r *Record) Clone() *Record {
	cp := *r
	if r.PenaltyAmount != nil {
		v := *r.PenaltyAmount
		cp.PenaltyAmount = &v
	}
	if r.Payment != nil {
		p := *r.Payment
		cp.Payment = &p
	}
	if r.ArchivedAt != nil {
		at := *r.ArchivedAt
		cp.ArchivedAt = &at
	}
	cp.History = make([]HistoryEntry, len(r.History))
	copy(cp.History, r.History)
	return &cp
}
