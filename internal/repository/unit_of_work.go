package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/storefront-hq/service-billing/internal/domain/store"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
)

// GormUnitOfWork runs repository operations inside one database transaction.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Execute runs fn against transaction-bound repositories. Any error rolls
// the whole transaction back, so the subscription write and the store isPaid
// write commit together or not at all.
func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(subs subscription.Repository, stores store.Directory) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormSubscriptionRepository(tx), NewGormStoreRepository(tx))
	})
}
