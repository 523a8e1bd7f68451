package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StatsWorker consumes payment events and keeps sales statistics current
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(consumer *broker.Consumer, stats *service.StatsService) *StatsWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentCompleted(stats.HandlePaymentCompleted)
	eventHandler.OnPaymentFailed(stats.HandlePaymentFailed)

	return &StatsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.Named("worker.stats"),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	w.logger.Info("stopping stats worker")
	return w.consumer.Close()
}
