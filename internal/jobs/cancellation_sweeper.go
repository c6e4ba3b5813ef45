package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/application"
	"github.com/storefront-hq/service-billing/internal/domain/subscription"
	"github.com/storefront-hq/service-billing/pkg/domain"
)

// CancellationSweeper finalizes deferred cancellations. Scheduled (period-end)
// cancellations normally complete when the provider sends
// customer.subscription.deleted; the sweeper is the backstop that catches
// subscriptions whose period has closed but whose webhook never arrived.
type CancellationSweeper struct {
	subs      subscription.Repository
	lifecycle *application.SubscriptionService
	interval  time.Duration
	logger    *zap.Logger
}

// NewCancellationSweeper creates a sweeper running at the given interval.
func NewCancellationSweeper(
	subs subscription.Repository,
	lifecycle *application.SubscriptionService,
	interval time.Duration,
	logger *zap.Logger,
) *CancellationSweeper {
	return &CancellationSweeper{
		subs:      subs,
		lifecycle: lifecycle,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *CancellationSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("cancellation sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce cancels every subscription whose scheduled period-end
// cancellation is overdue.
func (s *CancellationSweeper) SweepOnce(ctx context.Context) error {
	due, err := s.subs.FindDueForCancellation(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, sub := range due {
		_, err := s.lifecycle.UpdateSubscriptionStatus(ctx, sub.ID(), subscription.StatusCancelled, application.UpdateStatusParams{})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				// Cancelled concurrently by a webhook; nothing left to do.
				continue
			}
			s.logger.Error("failed to finalize scheduled cancellation",
				zap.String("subscription_id", sub.ID().String()),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("scheduled cancellation finalized",
			zap.String("subscription_id", sub.ID().String()),
		)
	}
	return nil
}
