package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/kafka"
)

// Topic and event type names for billing events.
const (
	TopicBillingEvents = "billing.events"

	SubscriptionCreated   = "billing.subscription.created"
	SubscriptionUpdated   = "billing.subscription.updated"
	SubscriptionCancelled = "billing.subscription.cancelled"

	eventSource = "service-billing"
)

// SubscriptionEvent is the payload published for every subscription state
// change. Downstream consumers (storefront visibility caches, dashboards)
// react to these instead of polling the billing database.
type SubscriptionEvent struct {
	SubscriptionID         uuid.UUID       `json:"subscription_id"`
	StoreID                uuid.UUID       `json:"store_id"`
	PlanName               string          `json:"plan_name"`
	Status                 string          `json:"status"`
	Price                  decimal.Decimal `json:"price"`
	CurrentPeriodEnd       time.Time       `json:"current_period_end"`
	ProviderSubscriptionID string          `json:"provider_subscription_id,omitempty"`
	OccurredAt             time.Time       `json:"occurred_at"`
}

// BillingEventPublisher publishes subscription lifecycle events to Kafka.
// Publishing is best-effort: a broker outage must never fail a webhook or an
// API call, so errors are logged and swallowed here.
type BillingEventPublisher struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

// NewBillingEventPublisher creates a new BillingEventPublisher.
func NewBillingEventPublisher(producer *kafka.Producer, logger *zap.Logger) *BillingEventPublisher {
	return &BillingEventPublisher{producer: producer, logger: logger}
}

// SubscriptionCreated announces a newly created subscription.
func (p *BillingEventPublisher) SubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	p.publish(ctx, SubscriptionCreated, sub)
}

// SubscriptionUpdated announces a subscription state change.
func (p *BillingEventPublisher) SubscriptionUpdated(ctx context.Context, sub *subscription.Subscription) {
	p.publish(ctx, SubscriptionUpdated, sub)
}

// SubscriptionCancelled announces a cancelled subscription.
func (p *BillingEventPublisher) SubscriptionCancelled(ctx context.Context, sub *subscription.Subscription) {
	p.publish(ctx, SubscriptionCancelled, sub)
}

func (p *BillingEventPublisher) publish(ctx context.Context, eventType string, sub *subscription.Subscription) {
	payload := SubscriptionEvent{
		SubscriptionID:         sub.ID(),
		StoreID:                sub.StoreID(),
		PlanName:               sub.PlanName(),
		Status:                 string(sub.Status()),
		Price:                  sub.Price(),
		CurrentPeriodEnd:       sub.CurrentPeriodEnd(),
		ProviderSubscriptionID: sub.ProviderSubscriptionID(),
		OccurredAt:             time.Now().UTC(),
	}

	ce, err := kafka.NewCloudEvent(eventSource, eventType, payload)
	if err != nil {
		p.logger.Error("failed to build billing event", zap.String("type", eventType), zap.Error(err))
		return
	}

	if err := p.producer.PublishEvent(ctx, TopicBillingEvents, ce); err != nil {
		p.logger.Error("failed to publish billing event",
			zap.String("type", eventType),
			zap.String("subscription_id", sub.ID().String()),
			zap.Error(err),
		)
	}
}
