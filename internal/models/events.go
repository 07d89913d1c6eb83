package models

import "time"

// Event types
const (
	EventTypeStoreChanged       = "STORE_CHANGED"
	EventTypeMemberChanged      = "MEMBER_CHANGED"
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// Change actions carried by entity events
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// EntityChangedEvent is published after a store or member write
type EntityChangedEvent struct {
	BaseEvent
	EntityID string `json:"entity_id"`
	Action   string `json:"action"`
}

// OrderPlacedEvent is published after checkout succeeds
type OrderPlacedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	MemberID string `json:"member_id"`
	StoreID  string `json:"store_id"`
	Total    string `json:"total"`
	Items    int    `json:"items"`
}

// OrderStatusChangedEvent is published after an approve or reject
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}
