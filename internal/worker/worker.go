package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/querycache"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Invalidator is the part of the query cache the worker needs.
type Invalidator interface {
	Invalidate(keys ...querycache.Key)
}

// InvalidationWorker marks cached collections stale when another instance
// reports a write.
type InvalidationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        Invalidator
	logger       *zap.Logger
}

// NewInvalidationWorker creates a worker that ignores events published by
// selfSource.
func NewInvalidationWorker(consumer *broker.Consumer, cache Invalidator, selfSource string) *InvalidationWorker {
	w := &InvalidationWorker{
		consumer: consumer,
		cache:    cache,
		logger:   util.NamedLogger("worker"),
	}
	w.eventHandler = NewInvalidationHandler(cache, selfSource, w.logger)
	return w
}

// NewInvalidationHandler routes events to cache invalidations.
func NewInvalidationHandler(cache Invalidator, selfSource string, logger *zap.Logger) *broker.EventHandler {
	h := broker.NewEventHandler(selfSource)

	invalidate := func(eventType string, keys ...querycache.Key) {
		util.EventsConsumedTotal.WithLabelValues(eventType).Inc()
		cache.Invalidate(keys...)
		logger.Debug("Invalidated cache from event", zap.String("event_type", eventType))
	}

	h.OnEntityChanged(func(_ context.Context, e *models.EntityChangedEvent) error {
		switch e.EventType {
		case models.EventTypeStoreChanged:
			invalidate(e.EventType, service.KeyStores)
		case models.EventTypeMemberChanged:
			invalidate(e.EventType, service.KeyMembers)
		}
		return nil
	})
	h.OnOrderPlaced(func(_ context.Context, e *models.OrderPlacedEvent) error {
		invalidate(e.EventType, service.KeyOrders)
		return nil
	})
	h.OnOrderStatusChanged(func(_ context.Context, e *models.OrderStatusChangedEvent) error {
		invalidate(e.EventType, service.KeyOrders)
		return nil
	})
	return h
}

// Start starts the worker
func (w *InvalidationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting invalidation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InvalidationWorker) Stop() error {
	w.logger.Info("Stopping invalidation worker")
	return w.consumer.Close()
}
