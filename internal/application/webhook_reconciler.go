package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// providerName identifies the payment provider on records this reconciler
// creates.
const providerName = "stripe"

// WebhookReconciler turns verified provider events into subscription
// lifecycle operations. The provider delivers events at least once and in no
// guaranteed order, so every arm is idempotent: replays and events for
// subscriptions this service never recorded are acknowledged without effect.
//
// Ordering between distinct events is last-write-wins; there is no event
// version check. A stale update can briefly overwrite a newer one until the
// next event arrives.
type WebhookReconciler struct {
	lifecycle *SubscriptionService
	subs      subscription.Repository
	gateway   adapter.PaymentGateway
	logger    *zap.Logger
}

// NewWebhookReconciler creates a WebhookReconciler.
func NewWebhookReconciler(
	lifecycle *SubscriptionService,
	subs subscription.Repository,
	gateway adapter.PaymentGateway,
	logger *zap.Logger,
) *WebhookReconciler {
	return &WebhookReconciler{
		lifecycle: lifecycle,
		subs:      subs,
		gateway:   gateway,
		logger:    logger,
	}
}

// Execute dispatches a provider event to the matching lifecycle operation.
// Errors are logged and returned so the boundary can pick the retry signal.
func (r *WebhookReconciler) Execute(ctx context.Context, event adapter.Event) error {
	r.logger.Info("processing provider event", zap.String("type", event.EventType()))

	var err error
	switch e := event.(type) {
	case adapter.CheckoutSessionCompleted:
		err = r.handleCheckoutCompleted(ctx, e)
	case adapter.SubscriptionUpdated:
		err = r.handleSubscriptionUpdated(ctx, e)
	case adapter.SubscriptionDeleted:
		err = r.applyStatus(ctx, e.ProviderSubscriptionID, subscription.StatusCancelled, UpdateStatusParams{PeriodEnd: e.PeriodEnd})
	case adapter.InvoicePaymentSucceeded:
		err = r.applyStatus(ctx, e.ProviderSubscriptionID, subscription.StatusPaid, UpdateStatusParams{
			PeriodStart: e.PeriodStart,
			PeriodEnd:   e.PeriodEnd,
			NextPayment: e.NextPayment,
		})
	case adapter.InvoicePaymentFailed:
		err = r.applyStatus(ctx, e.ProviderSubscriptionID, subscription.StatusPending, UpdateStatusParams{NextPayment: e.NextPayment})
	case adapter.UnrecognizedEvent:
		r.logger.Debug("ignoring unhandled provider event", zap.String("type", e.Kind))
		return nil
	default:
		r.logger.Debug("ignoring unknown event shape", zap.String("type", event.EventType()))
		return nil
	}

	if err != nil {
		r.logger.Error("provider event processing failed",
			zap.String("type", event.EventType()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// handleCheckoutCompleted records the subscription established by a finished
// checkout flow. Replayed deliveries find the existing row (or hit the unique
// index on provider_subscription_id when two deliveries race) and do nothing.
func (r *WebhookReconciler) handleCheckoutCompleted(ctx context.Context, event adapter.CheckoutSessionCompleted) error {
	storeIDRaw := event.Metadata["store_id"]
	if storeIDRaw == "" {
		return domain.NewValidationError("checkout session metadata missing store_id")
	}
	storeID, err := uuid.Parse(storeIDRaw)
	if err != nil {
		return domain.NewValidationError("checkout session metadata store_id is not a valid id")
	}
	if event.ProviderSubscriptionID == "" {
		return domain.NewValidationError("checkout session carries no subscription id")
	}

	if _, err := r.subs.FindByProviderSubscriptionID(ctx, event.ProviderSubscriptionID); err == nil {
		r.logger.Info("checkout already reconciled, skipping",
			zap.String("provider_subscription_id", event.ProviderSubscriptionID),
		)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	snapshot, err := r.gateway.GetSubscriptionSnapshot(ctx, event.ProviderSubscriptionID)
	if err != nil {
		return err
	}

	customerID := snapshot.ProviderCustomerID
	if customerID == "" {
		customerID = event.ProviderCustomerID
	}

	_, err = r.lifecycle.CreateSubscription(ctx, CreateSubscriptionRequest{
		StoreID:                storeID,
		PlanName:               snapshot.PlanName,
		PlanID:                 snapshot.PlanID,
		Provider:               providerName,
		CurrentPeriodStart:     snapshot.PeriodStart,
		CurrentPeriodEnd:       snapshot.PeriodEnd,
		Price:                  snapshot.Price,
		Status:                 subscription.StatusPaid,
		NextPayment:            snapshot.NextPayment,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     customerID,
	})
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent delivery won the insert race; this one is done.
		r.logger.Info("concurrent checkout delivery already created subscription",
			zap.String("provider_subscription_id", event.ProviderSubscriptionID),
		)
		return nil
	}
	return err
}

// handleSubscriptionUpdated syncs a provider-initiated status change.
func (r *WebhookReconciler) handleSubscriptionUpdated(ctx context.Context, event adapter.SubscriptionUpdated) error {
	return r.applyStatus(ctx, event.ProviderSubscriptionID, mapProviderStatus(event.ProviderStatus), UpdateStatusParams{
		PeriodStart: event.PeriodStart,
		PeriodEnd:   event.PeriodEnd,
	})
}

// applyStatus looks up the local subscription for a provider id and applies a
// status change. Events for unknown subscriptions and transitions the state
// machine rejects (a stale event after cancellation) are acknowledged as
// no-ops; retrying them could never succeed.
func (r *WebhookReconciler) applyStatus(ctx context.Context, providerSubID string, status subscription.Status, params UpdateStatusParams) error {
	if providerSubID == "" {
		r.logger.Debug("provider event carries no subscription id, skipping")
		return nil
	}

	sub, err := r.subs.FindByProviderSubscriptionID(ctx, providerSubID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Info("event for unknown subscription, skipping",
			zap.String("provider_subscription_id", providerSubID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.lifecycle.UpdateSubscriptionStatus(ctx, sub.ID(), status, params)
	if errors.Is(err, domain.ErrInvalidState) {
		r.logger.Warn("provider event rejected by state machine, skipping",
			zap.String("provider_subscription_id", providerSubID),
			zap.String("current_status", string(sub.Status())),
			zap.String("requested_status", string(status)),
		)
		return nil
	}
	return err
}

// mapProviderStatus maps the provider's subscription status vocabulary onto
// the internal one. Anything that is not definitively paid or cancelled
// (trialing, past_due, incomplete, ...) is treated as PENDING.
func mapProviderStatus(providerStatus string) subscription.Status {
	switch providerStatus {
	case "active":
		return subscription.StatusPaid
	case "canceled":
		return subscription.StatusCancelled
	default:
		return subscription.StatusPending
	}
}
