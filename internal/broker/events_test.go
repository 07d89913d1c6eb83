package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/clock"
	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	keys   []string
	events []interface{}
	err    error
}

func (w *recordingWriter) PublishEvent(_ context.Context, key string, event interface{}) error {
	w.keys = append(w.keys, key)
	w.events = append(w.events, event)
	return w.err
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestPublisherStampsEvents(t *testing.T) {
	w := &recordingWriter{}
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	ep := NewEventPublisher(w, "instance-a", clock.NewFake(now))

	ep.PublishOrderPlaced(context.Background(), models.Order{
		ID:       "order-16",
		MemberID: "2",
		StoreID:  "1",
		Items:    []models.OrderItem{{ProductID: "1", Quantity: 2, Price: decimal.NewFromInt(5)}},
		Total:    decimal.NewFromInt(10),
	})

	require.Len(t, w.events, 1)
	assert.Equal(t, "order-16", w.keys[0])
	ev := w.events[0].(*models.OrderPlacedEvent)
	assert.Equal(t, models.EventTypeOrderPlaced, ev.EventType)
	assert.Equal(t, "instance-a", ev.Source)
	assert.Equal(t, now, ev.Timestamp)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "10", ev.Total)
	assert.Equal(t, 1, ev.Items)
}

func TestPublisherSwallowsWriteErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(w, "instance-a", clock.Real{})

	assert.NotPanics(t, func() {
		ep.PublishEntityChanged(context.Background(), models.EventTypeStoreChanged, "3", models.ActionDeleted)
	})
	assert.Equal(t, []string{"STORE_CHANGED-3"}, w.keys)
}

func TestHandlerRoutesByType(t *testing.T) {
	h := NewEventHandler("self")
	var entity *models.EntityChangedEvent
	var status *models.OrderStatusChangedEvent
	h.OnEntityChanged(func(_ context.Context, e *models.EntityChangedEvent) error {
		entity = e
		return nil
	})
	h.OnOrderStatusChanged(func(_ context.Context, e *models.OrderStatusChangedEvent) error {
		status = e
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, models.EntityChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeMemberChanged, Source: "peer"},
		EntityID:  "5",
		Action:    models.ActionUpdated,
	}))
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "5", entity.EntityID)
	assert.Equal(t, models.EventTypeMemberChanged, entity.EventType)

	err = h.HandleMessage(context.Background(), message(t, models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderStatusChanged, Source: "peer"},
		OrderID:   "order-7",
		Status:    models.OrderStatusApproved,
	}))
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.OrderStatusApproved, status.Status)

	// Unregistered and unknown types are accepted and ignored.
	assert.NoError(t, h.HandleMessage(context.Background(), message(t, models.BaseEvent{EventType: models.EventTypeOrderPlaced})))
	assert.NoError(t, h.HandleMessage(context.Background(), message(t, models.BaseEvent{EventType: "SOMETHING_ELSE"})))
}

func TestHandlerSkipsOwnEvents(t *testing.T) {
	h := NewEventHandler("self")
	called := false
	h.OnEntityChanged(func(context.Context, *models.EntityChangedEvent) error {
		called = true
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, models.EntityChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeStoreChanged, Source: "self"},
		EntityID:  "1",
	}))

	require.NoError(t, err)
	assert.False(t, called)
}

func TestHandlerRejectsMalformedMessage(t *testing.T) {
	h := NewEventHandler("")
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}))
}
