package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront-hq/service-billing/pkg/domain"
)

// Status represents the billing state of a subscription.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// validTransitions is the closed set of allowed status changes.
// CANCELLED is terminal: once a subscription is cancelled it never
// transitions back, even if a stale provider event says otherwise.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPending, StatusPaid, StatusCancelled},
	StatusPaid:      {StatusPaid, StatusPending, StatusCancelled},
	StatusCancelled: {StatusCancelled},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Subscription is the aggregate root for a store's billing relationship
// with the payment provider.
type Subscription struct {
	id                     uuid.UUID
	storeID                uuid.UUID
	planName               string
	planID                 string
	provider               string
	currentPeriodStart     time.Time
	currentPeriodEnd       time.Time
	price                  decimal.Decimal
	status                 Status
	nextPayment            *time.Time
	providerSubscriptionID string
	providerCustomerID     string
	cancelAtPeriodEnd      bool
	createdAt              time.Time
	updatedAt              time.Time
}

// NewParams holds the data needed to create a subscription.
type NewParams struct {
	StoreID                uuid.UUID
	PlanName               string
	PlanID                 string
	Provider               string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	Price                  decimal.Decimal
	Status                 Status
	NextPayment            *time.Time
	ProviderSubscriptionID string
	ProviderCustomerID     string
}

// New creates a subscription. Status defaults to PENDING when unset.
func New(p NewParams) (*Subscription, error) {
	if p.StoreID == uuid.Nil {
		return nil, domain.NewValidationError("store id is required")
	}
	if p.PlanName == "" {
		return nil, domain.NewValidationError("plan name is required")
	}
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	if status != StatusPending && status != StatusPaid && status != StatusCancelled {
		return nil, domain.NewValidationError("unknown subscription status: " + string(status))
	}

	now := time.Now().UTC()
	return &Subscription{
		id:                     uuid.New(),
		storeID:                p.StoreID,
		planName:               p.PlanName,
		planID:                 p.PlanID,
		provider:               p.Provider,
		currentPeriodStart:     p.CurrentPeriodStart,
		currentPeriodEnd:       p.CurrentPeriodEnd,
		price:                  p.Price,
		status:                 status,
		nextPayment:            p.NextPayment,
		providerSubscriptionID: p.ProviderSubscriptionID,
		providerCustomerID:     p.ProviderCustomerID,
		createdAt:              now,
		updatedAt:              now,
	}, nil
}

// Reconstitute rebuilds a Subscription from persisted data.
func Reconstitute(
	id, storeID uuid.UUID,
	planName, planID, provider string,
	currentPeriodStart, currentPeriodEnd time.Time,
	price decimal.Decimal,
	status Status,
	nextPayment *time.Time,
	providerSubscriptionID, providerCustomerID string,
	cancelAtPeriodEnd bool,
	createdAt, updatedAt time.Time,
) *Subscription {
	return &Subscription{
		id:                     id,
		storeID:                storeID,
		planName:               planName,
		planID:                 planID,
		provider:               provider,
		currentPeriodStart:     currentPeriodStart,
		currentPeriodEnd:       currentPeriodEnd,
		price:                  price,
		status:                 status,
		nextPayment:            nextPayment,
		providerSubscriptionID: providerSubscriptionID,
		providerCustomerID:     providerCustomerID,
		cancelAtPeriodEnd:      cancelAtPeriodEnd,
		createdAt:              createdAt,
		updatedAt:              updatedAt,
	}
}

// --- Getters ---

func (s *Subscription) ID() uuid.UUID                  { return s.id }
func (s *Subscription) StoreID() uuid.UUID             { return s.storeID }
func (s *Subscription) PlanName() string               { return s.planName }
func (s *Subscription) PlanID() string                 { return s.planID }
func (s *Subscription) Provider() string               { return s.provider }
func (s *Subscription) CurrentPeriodStart() time.Time  { return s.currentPeriodStart }
func (s *Subscription) CurrentPeriodEnd() time.Time    { return s.currentPeriodEnd }
func (s *Subscription) Price() decimal.Decimal         { return s.price }
func (s *Subscription) Status() Status                 { return s.status }
func (s *Subscription) NextPayment() *time.Time        { return s.nextPayment }
func (s *Subscription) ProviderSubscriptionID() string { return s.providerSubscriptionID }
func (s *Subscription) ProviderCustomerID() string     { return s.providerCustomerID }
func (s *Subscription) CancelAtPeriodEnd() bool        { return s.cancelAtPeriodEnd }
func (s *Subscription) CreatedAt() time.Time           { return s.createdAt }
func (s *Subscription) UpdatedAt() time.Time           { return s.updatedAt }

// IsPaid reports whether the subscription currently grants paid visibility.
func (s *Subscription) IsPaid() bool {
	return s.status == StatusPaid
}

// --- Behavior ---

// ChangeStatus applies a status transition, enforcing the transition table.
func (s *Subscription) ChangeStatus(to Status) error {
	if !CanTransition(s.status, to) {
		return domain.NewInvalidStateError(string(s.status), string(to))
	}
	s.status = to
	s.updatedAt = time.Now().UTC()
	return nil
}

// UpdatePeriod sets the current billing period bounds. Zero values leave the
// existing bounds untouched.
func (s *Subscription) UpdatePeriod(start, end time.Time) {
	if !start.IsZero() {
		s.currentPeriodStart = start
	}
	if !end.IsZero() {
		s.currentPeriodEnd = end
	}
	s.updatedAt = time.Now().UTC()
}

// SetNextPayment sets the timestamp of the next expected charge.
func (s *Subscription) SetNextPayment(t *time.Time) {
	s.nextPayment = t
	s.updatedAt = time.Now().UTC()
}

// ScheduleCancellation marks the subscription to end at the current period
// end. Status is untouched; the actual CANCELLED transition happens when the
// period closes (provider webhook or the cancellation sweeper).
func (s *Subscription) ScheduleCancellation() error {
	if s.status == StatusCancelled {
		return domain.NewInvalidStateError(string(StatusCancelled), string(StatusCancelled))
	}
	s.cancelAtPeriodEnd = true
	s.updatedAt = time.Now().UTC()
	return nil
}
