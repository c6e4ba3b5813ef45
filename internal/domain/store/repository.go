package store

import (
	"context"

	"github.com/google/uuid"
)

// Directory defines the read/update operations this service needs on stores.
type Directory interface {
	// FindByID returns a store by id.
	FindByID(ctx context.Context, id uuid.UUID) (*Store, error)

	// UpdatePaidFlag persists the paid-visibility flag for a store.
	UpdatePaidFlag(ctx context.Context, s *Store) error
}
