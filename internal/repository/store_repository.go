package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	storeDomain "github.com/storefront-hq/service-billing/internal/domain/store"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// StoreModel is the GORM model for the stores table. The table is owned by
// the storefront service; this service only reads rows and writes is_paid.
type StoreModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	IsPaid    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (StoreModel) TableName() string { return "stores" }

// GormStoreRepository implements store.Directory using GORM.
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository.
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

// FindByID returns a store by id.
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*storeDomain.Store, error) {
	var model StoreModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Store", id.String())
		}
		return nil, err
	}
	return storeDomain.Reconstitute(model.ID, model.Name, model.IsPaid, model.CreatedAt, model.UpdatedAt), nil
}

// UpdatePaidFlag persists the paid-visibility flag for a store.
func (r *GormStoreRepository) UpdatePaidFlag(ctx context.Context, s *storeDomain.Store) error {
	result := r.db.WithContext(ctx).
		Model(&StoreModel{}).
		Where("id = ?", s.ID()).
		Updates(map[string]interface{}{
			"is_paid":    s.IsPaid(),
			"updated_at": s.UpdatedAt(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Store", s.ID().String())
	}
	return nil
}
