package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	subDomain "github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// SubscriptionModel is the GORM model for the subscriptions table. The
// unique index on provider_subscription_id is what makes concurrent
// checkout.session.completed deliveries safe: the second insert fails and is
// treated as already handled.
type SubscriptionModel struct {
	ID                     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	StoreID                uuid.UUID       `gorm:"type:uuid;not null;index"`
	PlanName               string          `gorm:"type:varchar(255);not null"`
	PlanID                 string          `gorm:"type:varchar(255)"`
	Provider               string          `gorm:"type:varchar(50);not null"`
	CurrentPeriodStart     time.Time       `gorm:"type:timestamptz;not null"`
	CurrentPeriodEnd       time.Time       `gorm:"type:timestamptz;not null"`
	Price                  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status                 string          `gorm:"type:varchar(20);not null;default:'PENDING'"`
	NextPayment            *time.Time      `gorm:"type:timestamptz"`
	ProviderSubscriptionID *string         `gorm:"type:varchar(255);uniqueIndex"`
	ProviderCustomerID     string          `gorm:"type:varchar(255)"`
	CancelAtPeriodEnd      bool            `gorm:"not null;default:false"`
	CreatedAt              time.Time       `gorm:"type:timestamptz;not null"`
	UpdatedAt              time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (SubscriptionModel) TableName() string { return "subscriptions" }

// GormSubscriptionRepository implements subscription.Repository using GORM.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository.
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Save persists a new subscription. A unique index violation on
// provider_subscription_id surfaces as a conflict error.
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *subDomain.Subscription) error {
	model := toSubscriptionModel(s)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError(
				"subscription already exists for provider subscription id " + s.ProviderSubscriptionID())
		}
		return err
	}
	return nil
}

// Update persists changes to an existing subscription.
func (r *GormSubscriptionRepository) Update(ctx context.Context, s *subDomain.Subscription) error {
	model := toSubscriptionModel(s)
	result := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("id = ?", model.ID).
		Select("Status", "CurrentPeriodStart", "CurrentPeriodEnd", "NextPayment", "CancelAtPeriodEnd", "UpdatedAt").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Subscription", s.ID().String())
	}
	return nil
}

// FindByID returns a subscription by its local id.
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subDomain.Subscription, error) {
	var model SubscriptionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Subscription", id.String())
		}
		return nil, err
	}
	return toSubscriptionDomain(&model), nil
}

// FindByProviderSubscriptionID returns the subscription correlated with an
// external provider subscription id.
func (r *GormSubscriptionRepository) FindByProviderSubscriptionID(ctx context.Context, providerSubID string) (*subDomain.Subscription, error) {
	var model SubscriptionModel
	if err := r.db.WithContext(ctx).Where("provider_subscription_id = ?", providerSubID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Subscription", providerSubID)
		}
		return nil, err
	}
	return toSubscriptionDomain(&model), nil
}

// FindByStoreID returns the most recent subscription for a store.
func (r *GormSubscriptionRepository) FindByStoreID(ctx context.Context, storeID uuid.UUID) (*subDomain.Subscription, error) {
	var model SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Subscription", storeID.String())
		}
		return nil, err
	}
	return toSubscriptionDomain(&model), nil
}

// FindDueForCancellation returns subscriptions scheduled to cancel at period
// end whose period has closed.
func (r *GormSubscriptionRepository) FindDueForCancellation(ctx context.Context, asOf time.Time) ([]*subDomain.Subscription, error) {
	var models []SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("cancel_at_period_end = ? AND status <> ? AND current_period_end <= ?",
			true, string(subDomain.StatusCancelled), asOf).
		Find(&models).Error; err != nil {
		return nil, err
	}

	subs := make([]*subDomain.Subscription, len(models))
	for i := range models {
		subs[i] = toSubscriptionDomain(&models[i])
	}
	return subs, nil
}

func toSubscriptionModel(s *subDomain.Subscription) SubscriptionModel {
	var providerSubID *string
	if s.ProviderSubscriptionID() != "" {
		v := s.ProviderSubscriptionID()
		providerSubID = &v
	}
	return SubscriptionModel{
		ID:                     s.ID(),
		StoreID:                s.StoreID(),
		PlanName:               s.PlanName(),
		PlanID:                 s.PlanID(),
		Provider:               s.Provider(),
		CurrentPeriodStart:     s.CurrentPeriodStart(),
		CurrentPeriodEnd:       s.CurrentPeriodEnd(),
		Price:                  s.Price(),
		Status:                 string(s.Status()),
		NextPayment:            s.NextPayment(),
		ProviderSubscriptionID: providerSubID,
		ProviderCustomerID:     s.ProviderCustomerID(),
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd(),
		CreatedAt:              s.CreatedAt(),
		UpdatedAt:              s.UpdatedAt(),
	}
}

func toSubscriptionDomain(m *SubscriptionModel) *subDomain.Subscription {
	providerSubID := ""
	if m.ProviderSubscriptionID != nil {
		providerSubID = *m.ProviderSubscriptionID
	}
	return subDomain.Reconstitute(
		m.ID, m.StoreID,
		m.PlanName, m.PlanID, m.Provider,
		m.CurrentPeriodStart, m.CurrentPeriodEnd,
		m.Price,
		subDomain.Status(m.Status),
		m.NextPayment,
		providerSubID, m.ProviderCustomerID,
		m.CancelAtPeriodEnd,
		m.CreatedAt, m.UpdatedAt,
	)
}
