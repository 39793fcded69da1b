// Package memory provides the in-memory RecordStore used in development and
// tests. For production deployments use the postgres package instead.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"contrava/internal/citation/models"
	"contrava/internal/citation/store"
	id "contrava/pkg/domain"
	"contrava/pkg/platform/sentinel"
)

// InMemory keeps records in a mutex-guarded map with a secondary pvNumber
// index. Records are cloned on every read and write boundary so callers can
// never alias store-owned state.
type InMemory struct {
	mu       sync.RWMutex
	records  map[id.RecordID]*models.Record
	byNumber map[string]id.RecordID
}

// NewInMemory creates an empty in-memory record store.
func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[id.RecordID]*models.Record),
		byNumber: make(map[string]id.RecordID),
	}
}

// Create inserts a new record. Returns ErrAlreadyUsed when the id or the
// pvNumber is already taken.
func (s *InMemory) Create(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	key := pvKey(record.PVNumber)
	if _, exists := s.byNumber[key]; exists {
		return sentinel.ErrAlreadyUsed
	}

	s.records[record.ID] = record.Clone()
	s.byNumber[key] = record.ID
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *InMemory) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByPVNumber returns the record with the given citation number, or
// ErrNotFound.
func (s *InMemory) GetByPVNumber(ctx context.Context, pvNumber string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, ok := s.byNumber[pvKey(pvNumber)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[recordID].Clone(), nil
}

// Put replaces the stored record if and only if its status still equals
// expectedStatus. Returns ErrConflict when a concurrent write changed the
// status first, ErrNotFound for an unknown id.
func (s *InMemory) Put(ctx context.Context, record *models.Record, expectedStatus models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expectedStatus {
		return sentinel.ErrConflict
	}

	s.records[record.ID] = record.Clone()
	return nil
}

// Scan returns one page of matching records ordered by issuedAt descending,
// id ascending, plus the total match count.
func (s *InMemory) Scan(ctx context.Context, filter store.ScanFilter, page store.Page) ([]*models.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*models.Record, 0, len(s.records))
	for _, rec := range s.records {
		if matchesFilter(rec, filter) {
			matches = append(matches, rec)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].IssuedAt.Equal(matches[j].IssuedAt) {
			return matches[i].IssuedAt.After(matches[j].IssuedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})

	total := len(matches)
	start := page.Offset()
	if start >= total {
		return []*models.Record{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	out := make([]*models.Record, 0, end-start)
	for _, rec := range matches[start:end] {
		out = append(out, rec.Clone())
	}
	return out, total, nil
}

func matchesFilter(rec *models.Record, filter store.ScanFilter) bool {
	if filter.From != nil && rec.IssuedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !rec.IssuedAt.Before(*filter.To) {
		return false
	}
	if filter.Status != nil && rec.Status != *filter.Status {
		return false
	}
	if filter.FreeText != "" {
		q := filter.FreeText
		if !strings.Contains(strings.ToLower(rec.PVNumber), q) &&
			!strings.Contains(strings.ToLower(rec.DriverName), q) &&
			!strings.Contains(strings.ToLower(rec.VehiclePlate), q) {
			return false
		}
	}
	return true
}

func pvKey(pvNumber string) string {
	return strings.ToLower(strings.TrimSpace(pvNumber))
}
