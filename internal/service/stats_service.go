package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StatsService applies completed purchases to download counters
type StatsService struct {
	store  StatsRepository
	logger *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(store StatsRepository) *StatsService {
	return &StatsService{
		store:  store,
		logger: util.Named("stats"),
	}
}

// HandlePaymentCompleted bumps sales and earnings for every purchased item.
// Either all items are counted or none are, so a failed call can be retried.
// Discount usage is consumed when the payment is recorded, not here.
func (ss *StatsService) HandlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsService.HandlePaymentCompleted")
	defer span.End()

	applied, err := ss.store.RecordPurchaseStats(ctx, event.EventID, event.EventType, event.Items)
	if err != nil {
		return fmt.Errorf("failed to record purchase stats: %w", err)
	}
	if !applied {
		ss.logger.Info("event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	util.PaymentsRecordedTotal.Inc()
	ss.logger.Info("purchase stats recorded",
		zap.Int64("payment_id", event.PaymentID),
		zap.Int("items", len(event.Items)))
	return nil
}

// HandlePaymentFailed records the failure. No counters change.
func (ss *StatsService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	processed, err := ss.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	ss.logger.Warn("purchase failed",
		zap.String("purchase_key", event.PurchaseKey),
		zap.String("gateway", event.Gateway),
		zap.String("reason", event.Reason))

	if err := ss.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ss.logger.Error("failed to mark event processed", zap.Error(err))
	}
	return nil
}
