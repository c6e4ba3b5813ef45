package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"
)

// StripeGateway implements PaymentGateway against the Stripe API.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway backed by the official Stripe SDK.
func NewStripeGateway(secretKey, webhookSecret string, logger *zap.Logger) *StripeGateway {
	api := client.New(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret, logger: logger}
}

// CreateCheckoutSession creates a subscription-mode checkout session with the
// store id carried in both session and subscription metadata, so every later
// webhook can be correlated back to the store.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	storeID := params.StoreID.String()

	sessionParams := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"store_id": storeID,
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(storeID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"store_id": storeID,
			},
		},
	}

	session, err := g.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		g.logger.Error("failed to create checkout session",
			zap.String("store_id", storeID),
			zap.String("price_id", params.PriceID),
			zap.Error(err),
		)
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return "", fmt.Errorf("unknown price id %s: %w", params.PriceID, err)
		}
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return session.URL, nil
}

// GetSubscriptionSnapshot fetches the provider's current view of a subscription.
func (g *StripeGateway) GetSubscriptionSnapshot(ctx context.Context, providerSubID string) (SubscriptionSnapshot, error) {
	sub, err := g.api.Subscriptions.Get(providerSubID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return SubscriptionSnapshot{}, fmt.Errorf("failed to fetch subscription %s: %w", providerSubID, err)
	}

	snapshot := SubscriptionSnapshot{
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		PeriodStart:            time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}

	if sub.Customer != nil {
		snapshot.ProviderCustomerID = sub.Customer.ID
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		snapshot.PlanID = price.ID
		snapshot.PlanName = price.Nickname
		if snapshot.PlanName == "" && price.Product != nil {
			snapshot.PlanName = price.Product.Name
		}
		if snapshot.PlanName == "" {
			snapshot.PlanName = price.ID
		}
		// UnitAmount is in the currency's minor unit.
		snapshot.Price = decimal.New(price.UnitAmount, -2)
	}

	if sub.Status == stripe.SubscriptionStatusActive && !sub.CancelAtPeriodEnd {
		next := snapshot.PeriodEnd
		snapshot.NextPayment = &next
	}

	return snapshot, nil
}

// VerifyAndDecodeEvent validates the webhook signature and decodes the
// payload into one of the typed events.
func (g *StripeGateway) VerifyAndDecodeEvent(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.logger.Warn("webhook signature verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return decodeStripeEvent(event)
}

// decodeStripeEvent maps a verified Stripe event to the typed event set.
func decodeStripeEvent(event stripe.Event) (Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session payload: %w", err)
		}
		// Only subscription-mode checkouts concern this service.
		if session.Mode != stripe.CheckoutSessionModeSubscription {
			return UnrecognizedEvent{Kind: string(event.Type)}, nil
		}
		decoded := CheckoutSessionCompleted{
			SessionID: session.ID,
			Metadata:  session.Metadata,
		}
		if session.Subscription != nil {
			decoded.ProviderSubscriptionID = session.Subscription.ID
		}
		if session.Customer != nil {
			decoded.ProviderCustomerID = session.Customer.ID
		}
		return decoded, nil

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription payload: %w", err)
		}
		return SubscriptionUpdated{
			Kind:                   string(event.Type),
			ProviderSubscriptionID: sub.ID,
			ProviderStatus:         string(sub.Status),
			PeriodStart:            time.Unix(sub.CurrentPeriodStart, 0).UTC(),
			PeriodEnd:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		}, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription payload: %w", err)
		}
		return SubscriptionDeleted{
			ProviderSubscriptionID: sub.ID,
			PeriodEnd:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		}, nil

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("failed to decode invoice payload: %w", err)
		}
		decoded := InvoicePaymentSucceeded{
			PeriodStart: time.Unix(invoice.PeriodStart, 0).UTC(),
			PeriodEnd:   time.Unix(invoice.PeriodEnd, 0).UTC(),
		}
		if invoice.Subscription != nil {
			decoded.ProviderSubscriptionID = invoice.Subscription.ID
		}
		if invoice.NextPaymentAttempt > 0 {
			next := time.Unix(invoice.NextPaymentAttempt, 0).UTC()
			decoded.NextPayment = &next
		}
		return decoded, nil

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("failed to decode invoice payload: %w", err)
		}
		decoded := InvoicePaymentFailed{}
		if invoice.Subscription != nil {
			decoded.ProviderSubscriptionID = invoice.Subscription.ID
		}
		if invoice.NextPaymentAttempt > 0 {
			next := time.Unix(invoice.NextPaymentAttempt, 0).UTC()
			decoded.NextPayment = &next
		}
		return decoded, nil

	default:
		return UnrecognizedEvent{Kind: string(event.Type)}, nil
	}
}

// CancelSubscription cancels at the provider, either now or at period end.
func (g *StripeGateway) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) error {
	if immediate {
		_, err := g.api.Subscriptions.Cancel(providerSubID, &stripe.SubscriptionCancelParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return fmt.Errorf("failed to cancel subscription %s: %w", providerSubID, err)
		}
		return nil
	}

	_, err := g.api.Subscriptions.Update(providerSubID, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cancellation for subscription %s: %w", providerSubID, err)
	}
	return nil
}
