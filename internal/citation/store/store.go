// Package store defines the persistence contract for citation records.
//
// Stores are interface-driven to keep the lifecycle and query logic testable
// and to allow swapping the in-memory implementation for PostgreSQL without
// rewiring business code. Stores are pure I/O; transition rules live in the
// service layer and filter resolution in the query layer.
package store

import (
	"context"
	"time"

	"contrava/internal/citation/models"
	id "contrava/pkg/domain"
)

// ScanFilter is a fully resolved filter: period presets and free text have
// already been normalized by the query layer.
type ScanFilter struct {
	// From (inclusive) and To (exclusive) bound IssuedAt. Nil means
	// unbounded on that side.
	From *time.Time
	To   *time.Time
	// Status restricts to a single status; nil means all statuses.
	Status *models.Status
	// FreeText is a lowercased substring matched against pvNumber, driver
	// name, and vehicle plate. Empty means no text filter.
	FreeText string
}

// Page is a 1-based page request with a bounded size.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of records preceding this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// RecordStore is durable storage of citation records and their status
// history, keyed by id with a secondary unique lookup by pvNumber.
//
// Put is the single mutation path after creation and implements optimistic
// concurrency: the write succeeds only while the stored status still equals
// expectedStatus, so concurrent transition attempts on one record resolve to
// exactly one winner. Scan returns one page ordered by issuedAt descending,
// ties broken by id ascending, together with the total match count.
type RecordStore interface {
	Create(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	GetByPVNumber(ctx context.Context, pvNumber string) (*models.Record, error)
	Put(ctx context.Context, record *models.Record, expectedStatus models.Status) error
	Scan(ctx context.Context, filter ScanFilter, page Page) ([]*models.Record, int, error)
}
