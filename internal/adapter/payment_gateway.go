package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidSignature is returned when a webhook payload fails signature
// verification. The boundary maps it to a 400 so the provider stops retrying.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// CheckoutParams holds the inputs for creating a provider checkout session.
type CheckoutParams struct {
	StoreID    uuid.UUID
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// SubscriptionSnapshot is the provider's current view of a subscription.
type SubscriptionSnapshot struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PlanID                 string
	PlanName               string
	Status                 string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Price                  decimal.Decimal
	NextPayment            *time.Time
}

// PaymentGateway is the anti-corruption layer in front of the external
// payment provider. Implementations own timeouts and retries; callers treat
// every method as a fallible synchronous operation.
type PaymentGateway interface {
	// CreateCheckoutSession starts a provider-hosted checkout flow and
	// returns the URL the customer should be redirected to.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)

	// GetSubscriptionSnapshot fetches the provider's view of a subscription.
	GetSubscriptionSnapshot(ctx context.Context, providerSubID string) (SubscriptionSnapshot, error)

	// VerifyAndDecodeEvent checks the webhook signature and decodes the raw
	// payload into a typed Event. Returns ErrInvalidSignature on failure.
	VerifyAndDecodeEvent(payload []byte, signatureHeader string) (Event, error)

	// CancelSubscription cancels a subscription at the provider, either
	// immediately or at the end of the current billing period.
	CancelSubscription(ctx context.Context, providerSubID string, immediate bool) error
}
