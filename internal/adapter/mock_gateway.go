package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MockPaymentGateway is a development implementation of PaymentGateway. It
// simulates provider behavior without a real account, so the checkout and
// cancellation flows can be exercised locally.
type MockPaymentGateway struct {
	logger *zap.Logger
}

// NewMockPaymentGateway creates a mock gateway for development.
func NewMockPaymentGateway(logger *zap.Logger) *MockPaymentGateway {
	return &MockPaymentGateway{logger: logger}
}

// CreateCheckoutSession returns a fake checkout URL.
func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	sessionID := fmt.Sprintf("cs_mock_%s", uuid.New().String()[:8])
	m.logger.Info("[MOCK PROVIDER] checkout session created",
		zap.String("session_id", sessionID),
		zap.String("store_id", params.StoreID.String()),
		zap.String("price_id", params.PriceID),
	)
	return fmt.Sprintf("https://checkout.example.test/pay/%s", sessionID), nil
}

// GetSubscriptionSnapshot returns a synthetic active subscription.
func (m *MockPaymentGateway) GetSubscriptionSnapshot(ctx context.Context, providerSubID string) (SubscriptionSnapshot, error) {
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	m.logger.Info("[MOCK PROVIDER] subscription snapshot fetched",
		zap.String("provider_subscription_id", providerSubID),
	)
	return SubscriptionSnapshot{
		ProviderSubscriptionID: providerSubID,
		ProviderCustomerID:     fmt.Sprintf("cus_mock_%s", uuid.New().String()[:8]),
		PlanID:                 "price_mock_basic",
		PlanName:               "Basic Plan",
		Status:                 "active",
		PeriodStart:            now,
		PeriodEnd:              periodEnd,
		Price:                  decimal.New(2999, -2),
		NextPayment:            &periodEnd,
	}, nil
}

// VerifyAndDecodeEvent accepts any payload with a non-empty signature header.
func (m *MockPaymentGateway) VerifyAndDecodeEvent(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, ErrInvalidSignature
	}
	m.logger.Info("[MOCK PROVIDER] webhook accepted without verification",
		zap.Int("payload_bytes", len(payload)),
	)
	return UnrecognizedEvent{Kind: "mock.event"}, nil
}

// CancelSubscription logs the cancellation request.
func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) error {
	m.logger.Info("[MOCK PROVIDER] subscription cancelled",
		zap.String("provider_subscription_id", providerSubID),
		zap.Bool("immediate", immediate),
	)
	return nil
}
