package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/clock"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter delivers one keyed event. *Producer implements it.
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// NopWriter drops every event. Used when no Kafka brokers are configured.
type NopWriter struct{}

func (NopWriter) PublishEvent(context.Context, string, interface{}) error { return nil }

// EventPublisher handles publishing domain events
type EventPublisher struct {
	writer EventWriter
	source string
	clock  clock.Clock
	logger *zap.Logger
}

// NewEventPublisher creates a new event publisher. source identifies this
// process so its own events can be skipped by its consumer.
func NewEventPublisher(writer EventWriter, source string, c clock.Clock) *EventPublisher {
	return &EventPublisher{
		writer: writer,
		source: source,
		clock:  c,
		logger: util.NamedLogger("publisher"),
	}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Source:    ep.source,
		Timestamp: ep.clock.Now(),
	}
}

// publish logs failures instead of returning them.
func (ep *EventPublisher) publish(ctx context.Context, key string, event interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ep.writer.PublishEvent(ctx, key, event); err != nil {
		ep.logger.Error("Failed to publish event", zap.String("key", key), zap.Error(err))
	}
}

// PublishEntityChanged publishes a STORE_CHANGED or MEMBER_CHANGED event
func (ep *EventPublisher) PublishEntityChanged(ctx context.Context, eventType, entityID, action string) {
	ep.publish(ctx, fmt.Sprintf("%s-%s", eventType, entityID), &models.EntityChangedEvent{
		BaseEvent: ep.base(eventType),
		EntityID:  entityID,
		Action:    action,
	})
}

// PublishOrderPlaced publishes ORDER_PLACED after checkout
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, order models.Order) {
	ep.publish(ctx, order.ID, &models.OrderPlacedEvent{
		BaseEvent: ep.base(models.EventTypeOrderPlaced),
		OrderID:   order.ID,
		MemberID:  order.MemberID,
		StoreID:   order.StoreID,
		Total:     order.Total.String(),
		Items:     len(order.Items),
	})
}

// PublishOrderStatusChanged publishes ORDER_STATUS_CHANGED after approve or reject
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, order models.Order) {
	ep.publish(ctx, order.ID, &models.OrderStatusChangedEvent{
		BaseEvent: ep.base(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		Status:    order.Status,
	})
}

// EventHandler routes incoming events by type
type EventHandler struct {
	skipSource      string
	onEntityChanged func(context.Context, *models.EntityChangedEvent) error
	onOrderPlaced   func(context.Context, *models.OrderPlacedEvent) error
	onOrderStatus   func(context.Context, *models.OrderStatusChangedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a handler that ignores events published by skipSource.
func NewEventHandler(skipSource string) *EventHandler {
	return &EventHandler{skipSource: skipSource, logger: util.NamedLogger("events")}
}

// OnEntityChanged registers a handler for STORE_CHANGED and MEMBER_CHANGED events
func (eh *EventHandler) OnEntityChanged(handler func(context.Context, *models.EntityChangedEvent) error) {
	eh.onEntityChanged = handler
}

// OnOrderPlaced registers a handler for ORDER_PLACED events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderStatusChanged registers a handler for ORDER_STATUS_CHANGED events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatus = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if eh.skipSource != "" && baseEvent.Source == eh.skipSource {
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeStoreChanged, models.EventTypeMemberChanged:
		if eh.onEntityChanged != nil {
			var event models.EntityChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onEntityChanged(ctx, &event)
		}

	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if eh.onOrderStatus != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onOrderStatus(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
