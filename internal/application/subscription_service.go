package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/domain/store"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// SubscriptionDTO is the API response for a subscription.
type SubscriptionDTO struct {
	ID                     uuid.UUID       `json:"id"`
	StoreID                uuid.UUID       `json:"store_id"`
	PlanName               string          `json:"plan_name"`
	PlanID                 string          `json:"plan_id"`
	Provider               string          `json:"provider"`
	CurrentPeriodStart     time.Time       `json:"current_period_start"`
	CurrentPeriodEnd       time.Time       `json:"current_period_end"`
	Price                  decimal.Decimal `json:"price"`
	Status                 string          `json:"status"`
	NextPayment            *time.Time      `json:"next_payment,omitempty"`
	ProviderSubscriptionID string          `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string          `json:"provider_customer_id,omitempty"`
	CancelAtPeriodEnd      bool            `json:"cancel_at_period_end"`
	CreatedAt              time.Time       `json:"created_at"`
}

// CreateSubscriptionRequest holds the data for creating a subscription.
type CreateSubscriptionRequest struct {
	StoreID                uuid.UUID
	PlanName               string
	PlanID                 string
	Provider               string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	Price                  decimal.Decimal
	Status                 subscription.Status
	NextPayment            *time.Time
	ProviderSubscriptionID string
	ProviderCustomerID     string
}

// UpdateStatusParams holds the optional fields accompanying a status change.
type UpdateStatusParams struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	NextPayment *time.Time
}

// SubscriptionService orchestrates the subscription lifecycle: creation,
// status changes, and cancellation, each with the store paid-visibility side
// effect applied in the same transaction.
type SubscriptionService struct {
	uow       UnitOfWork
	subs      subscription.Repository
	stores    store.Directory
	gateway   adapter.PaymentGateway
	publisher EventPublisher
	logger    *zap.Logger
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(
	uow UnitOfWork,
	subs subscription.Repository,
	stores store.Directory,
	gateway adapter.PaymentGateway,
	publisher EventPublisher,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		uow:       uow,
		subs:      subs,
		stores:    stores,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateCheckoutSession starts a provider-hosted checkout flow for a store.
func (s *SubscriptionService) CreateCheckoutSession(ctx context.Context, storeID uuid.UUID, priceID, successURL, cancelURL string) (string, error) {
	if _, err := s.stores.FindByID(ctx, storeID); err != nil {
		return "", err
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, adapter.CheckoutParams{
		StoreID:    storeID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			zap.String("store_id", storeID.String()),
			zap.Error(err),
		)
		return "", domain.NewProviderError("payment provider rejected the checkout request", err)
	}

	s.logger.Info("checkout session created", zap.String("store_id", storeID.String()))
	return url, nil
}

// CreateSubscription persists a new subscription and, when it is already
// PAID, flips the owning store's paid flag in the same transaction. A
// duplicate provider subscription id surfaces as a conflict error; callers
// on the webhook path treat that as "already handled".
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionDTO, error) {
	owner, err := s.stores.FindByID(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	sub, err := subscription.New(subscription.NewParams{
		StoreID:                req.StoreID,
		PlanName:               req.PlanName,
		PlanID:                 req.PlanID,
		Provider:               req.Provider,
		CurrentPeriodStart:     req.CurrentPeriodStart,
		CurrentPeriodEnd:       req.CurrentPeriodEnd,
		Price:                  req.Price,
		Status:                 req.Status,
		NextPayment:            req.NextPayment,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		ProviderCustomerID:     req.ProviderCustomerID,
	})
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(subs subscription.Repository, stores store.Directory) error {
		if err := subs.Save(ctx, sub); err != nil {
			return err
		}
		if sub.IsPaid() && !owner.IsPaid() {
			owner.SetPaid(true)
			return stores.UpdatePaidFlag(ctx, owner)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID().String()),
		zap.String("store_id", sub.StoreID().String()),
		zap.String("status", string(sub.Status())),
	)

	s.publisher.SubscriptionCreated(ctx, sub)
	return toSubscriptionDTO(sub), nil
}

// UpdateSubscriptionStatus changes a subscription's status and recomputes the
// owning store's paid flag, both in one transaction.
func (s *SubscriptionService) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status subscription.Status, params UpdateStatusParams) (*SubscriptionDTO, error) {
	var sub *subscription.Subscription

	err := s.uow.Execute(ctx, func(subs subscription.Repository, stores store.Directory) error {
		var err error
		sub, err = subs.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if err := sub.ChangeStatus(status); err != nil {
			return err
		}
		sub.UpdatePeriod(params.PeriodStart, params.PeriodEnd)
		if params.NextPayment != nil {
			sub.SetNextPayment(params.NextPayment)
		}

		if err := subs.Update(ctx, sub); err != nil {
			return err
		}

		return s.syncStorePaidFlag(ctx, stores, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription status updated",
		zap.String("subscription_id", sub.ID().String()),
		zap.String("status", string(sub.Status())),
	)

	if sub.Status() == subscription.StatusCancelled {
		s.publisher.SubscriptionCancelled(ctx, sub)
	} else {
		s.publisher.SubscriptionUpdated(ctx, sub)
	}
	return toSubscriptionDTO(sub), nil
}

// CancelSubscription cancels a subscription. Immediate cancellation
// transitions to CANCELLED now and clears the store's paid flag; deferred
// cancellation schedules the provider-side period-end cancellation and keeps
// the subscription PAID until the period closes.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, id uuid.UUID, immediate bool) (*SubscriptionDTO, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Provider first: a local record that claims cancellation while the
	// provider keeps charging is the worse failure mode.
	if sub.ProviderSubscriptionID() != "" {
		if err := s.gateway.CancelSubscription(ctx, sub.ProviderSubscriptionID(), immediate); err != nil {
			s.logger.Error("provider-side cancellation failed",
				zap.String("subscription_id", sub.ID().String()),
				zap.Error(err),
			)
			return nil, domain.NewProviderError("payment provider rejected the cancellation", err)
		}
	}

	if immediate {
		err = s.uow.Execute(ctx, func(subs subscription.Repository, stores store.Directory) error {
			if err := sub.ChangeStatus(subscription.StatusCancelled); err != nil {
				return err
			}
			if err := subs.Update(ctx, sub); err != nil {
				return err
			}
			return s.syncStorePaidFlag(ctx, stores, sub)
		})
	} else {
		err = s.uow.Execute(ctx, func(subs subscription.Repository, stores store.Directory) error {
			if err := sub.ScheduleCancellation(); err != nil {
				return err
			}
			return subs.Update(ctx, sub)
		})
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription cancellation applied",
		zap.String("subscription_id", sub.ID().String()),
		zap.Bool("immediate", immediate),
	)

	if immediate {
		s.publisher.SubscriptionCancelled(ctx, sub)
	} else {
		s.publisher.SubscriptionUpdated(ctx, sub)
	}
	return toSubscriptionDTO(sub), nil
}

// FindByStore returns the store's most recent subscription, or nil when the
// store has never subscribed.
func (s *SubscriptionService) FindByStore(ctx context.Context, storeID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.subs.FindByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toSubscriptionDTO(sub), nil
}

// syncStorePaidFlag writes the isPaid projection of the subscription's owning
// store. The flag is derived state: true iff the subscription is PAID.
func (s *SubscriptionService) syncStorePaidFlag(ctx context.Context, stores store.Directory, sub *subscription.Subscription) error {
	owner, err := stores.FindByID(ctx, sub.StoreID())
	if err != nil {
		return err
	}
	if owner.IsPaid() == sub.IsPaid() {
		return nil
	}
	owner.SetPaid(sub.IsPaid())
	return stores.UpdatePaidFlag(ctx, owner)
}

// toSubscriptionDTO maps a domain Subscription to its DTO.
func toSubscriptionDTO(sub *subscription.Subscription) *SubscriptionDTO {
	return &SubscriptionDTO{
		ID:                     sub.ID(),
		StoreID:                sub.StoreID(),
		PlanName:               sub.PlanName(),
		PlanID:                 sub.PlanID(),
		Provider:               sub.Provider(),
		CurrentPeriodStart:     sub.CurrentPeriodStart(),
		CurrentPeriodEnd:       sub.CurrentPeriodEnd(),
		Price:                  sub.Price(),
		Status:                 string(sub.Status()),
		NextPayment:            sub.NextPayment(),
		ProviderSubscriptionID: sub.ProviderSubscriptionID(),
		ProviderCustomerID:     sub.ProviderCustomerID(),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd(),
		CreatedAt:              sub.CreatedAt(),
	}
}
