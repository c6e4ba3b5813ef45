package application

import (
	"context"

	"github.com/storefront-hq/service-billing/internal/domain/store"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
)

// UnitOfWork runs a function against transaction-bound repositories. The
// subscription write and the store isPaid write always travel together: if
// either half fails, neither is visible.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(subs subscription.Repository, stores store.Directory) error) error
}

// EventPublisher announces committed subscription state changes to the rest
// of the platform. Publishing is best-effort and happens after the commit;
// implementations must not fail the business operation.
type EventPublisher interface {
	SubscriptionCreated(ctx context.Context, sub *subscription.Subscription)
	SubscriptionUpdated(ctx context.Context, sub *subscription.Subscription)
	SubscriptionCancelled(ctx context.Context, sub *subscription.Subscription)
}
