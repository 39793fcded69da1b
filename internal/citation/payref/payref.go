// Package payref tracks payment references already seen per record.
//
// The lifecycle engine reserves (recordID, reference) before attempting the
// payment write, which is what turns a retried or duplicated capture request
// into AlreadyPaid instead of a double booking. The record itself remains
// the durable truth; this store only closes the window between two in-flight
// requests carrying the same reference.
package payref

import (
	"context"
	"sync"
	"time"

	id "contrava/pkg/domain"
)

// ReservationTTL bounds how long an unconfirmed reservation can block a
// reference. A reservation released by neither commit nor rollback (process
// crash mid-payment) expires and the durable record check takes over.
const ReservationTTL = 24 * time.Hour

// Store reserves payment references per record.
type Store interface {
	// Reserve claims (recordID, reference). Returns false when the pair is
	// already claimed.
	Reserve(ctx context.Context, recordID id.RecordID, reference string) (bool, error)
	// Release frees a reservation after a failed payment attempt so the
	// caller can retry with the same reference.
	Release(ctx context.Context, recordID id.RecordID, reference string) error
}

// InMemory is the single-process Store used in development and tests.
type InMemory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewInMemory creates an empty in-memory reservation store.
func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[string]time.Time)}
}

// Reserve claims (recordID, reference) if free or expired.
func (s *InMemory) Reserve(ctx context.Context, recordID id.RecordID, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(recordID, reference)
	now := time.Now()
	if expiry, ok := s.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.seen[key] = now.Add(ReservationTTL)
	return true, nil
}

// Release frees a reservation.
func (s *InMemory) Release(ctx context.Context, recordID id.RecordID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, reservationKey(recordID, reference))
	return nil
}

func reservationKey(recordID id.RecordID, reference string) string {
	return recordID.String() + ":" + reference
}
