package worker

import (
	"context"
	"encoding/json"
	"testing"

	"storefront/internal/models"
	"storefront/internal/querycache"
	"storefront/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingCache struct {
	keys []querycache.Key
}

func (r *recordingCache) Invalidate(keys ...querycache.Key) {
	r.keys = append(r.keys, keys...)
}

func deliver(t *testing.T, cache *recordingCache, event interface{}) {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	h := NewInvalidationHandler(cache, "self", zap.NewNop())
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: b}))
}

func TestInvalidationByEventType(t *testing.T) {
	for _, tc := range []struct {
		name  string
		event interface{}
		want  []querycache.Key
	}{
		{"store", models.EntityChangedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeStoreChanged, Source: "peer"}}, []querycache.Key{service.KeyStores}},
		{"member", models.EntityChangedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeMemberChanged, Source: "peer"}}, []querycache.Key{service.KeyMembers}},
		{"placed", models.OrderPlacedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderPlaced, Source: "peer"}}, []querycache.Key{service.KeyOrders}},
		{"status", models.OrderStatusChangedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderStatusChanged, Source: "peer"}}, []querycache.Key{service.KeyOrders}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cache := &recordingCache{}
			deliver(t, cache, tc.event)
			assert.Equal(t, tc.want, cache.keys)
		})
	}
}

func TestOwnEventsDoNotInvalidate(t *testing.T) {
	cache := &recordingCache{}
	deliver(t, cache, models.OrderPlacedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderPlaced, Source: "self"}})
	assert.Empty(t, cache.keys)
}
