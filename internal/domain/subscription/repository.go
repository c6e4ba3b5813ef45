package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for subscriptions.
type Repository interface {
	// Save persists a new subscription. It returns a conflict error when a
	// row with the same provider subscription id already exists; the unique
	// index on that column is the idempotency backstop against concurrent
	// webhook deliveries.
	Save(ctx context.Context, s *Subscription) error

	// Update persists changes to an existing subscription.
	Update(ctx context.Context, s *Subscription) error

	// FindByID returns a subscription by its local id.
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindByProviderSubscriptionID returns the subscription correlated with
	// an external provider subscription id.
	FindByProviderSubscriptionID(ctx context.Context, providerSubID string) (*Subscription, error)

	// FindByStoreID returns the most recent subscription for a store.
	FindByStoreID(ctx context.Context, storeID uuid.UUID) (*Subscription, error)

	// FindDueForCancellation returns non-cancelled subscriptions scheduled to
	// cancel at period end whose period end has passed.
	FindDueForCancellation(ctx context.Context, asOf time.Time) ([]*Subscription, error)
}
