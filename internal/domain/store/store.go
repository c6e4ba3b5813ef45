package store

import (
	"time"

	"github.com/google/uuid"
)

// Store is the billing-relevant projection of a storefront. The catalog and
// dashboard services own the rest of the record; this service only reads
// stores and flips their paid-visibility flag.
type Store struct {
	id        uuid.UUID
	name      string
	isPaid    bool
	createdAt time.Time
	updatedAt time.Time
}

// Reconstitute rebuilds a Store from persisted data.
func Reconstitute(id uuid.UUID, name string, isPaid bool, createdAt, updatedAt time.Time) *Store {
	return &Store{id: id, name: name, isPaid: isPaid, createdAt: createdAt, updatedAt: updatedAt}
}

func (s *Store) ID() uuid.UUID        { return s.id }
func (s *Store) Name() string         { return s.name }
func (s *Store) IsPaid() bool         { return s.isPaid }
func (s *Store) CreatedAt() time.Time { return s.createdAt }
func (s *Store) UpdatedAt() time.Time { return s.updatedAt }

// SetPaid updates the paid-visibility flag. It is only ever called as a side
// effect of a subscription lifecycle operation, never by store editing flows.
func (s *Store) SetPaid(paid bool) {
	s.isPaid = paid
	s.updatedAt = time.Now().UTC()
}
