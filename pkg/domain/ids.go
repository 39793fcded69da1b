// Package domain holds typed identifiers shared across modules.
//
// IDs are distinct types over uuid.UUID so the compiler rejects cross-type
// assignment (a PaymentID can never be passed where a RecordID is expected).
// Parse functions enforce the trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "contrava/pkg/domain-errors"
)

// RecordID identifies a citation record.
type RecordID uuid.UUID

// PaymentID identifies a captured payment.
type PaymentID uuid.UUID

// NewRecordID generates a fresh random RecordID.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// NewPaymentID generates a fresh random PaymentID.
func NewPaymentID() PaymentID {
	return PaymentID(uuid.New())
}

// ParseRecordID validates and returns a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RecordID{}, err
	}
	return RecordID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}

func (id RecordID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether the ID is the nil UUID.
func (id RecordID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the ID in canonical UUID form for JSON payloads.
func (id RecordID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText parses the ID from canonical UUID form.
func (id *RecordID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RecordID(u)
	return nil
}

func (id PaymentID) String() string { return uuid.UUID(id).String() }

// MarshalText renders the ID in canonical UUID form for JSON payloads.
func (id PaymentID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText parses the ID from canonical UUID form.
func (id *PaymentID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = PaymentID(u)
	return nil
}
