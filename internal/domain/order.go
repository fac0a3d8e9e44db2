package domain

import (
	"encoding/json"
	"time"
)

// OrderStatus is the raw lifecycle status stored on an order.
//
// There is deliberately no legal-transition graph: human operators may move
// an order backward for corrections, so any status may follow any status.
// The status enumeration is closed; code that receives a status outside this
// set must treat it as unmapped rather than inventing behavior for it.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusCollectingFacts OrderStatus = "collecting_facts"
	StatusDemoSent        OrderStatus = "demo_sent"
	StatusAwaitingPayment OrderStatus = "awaiting_payment"
	StatusPaid            OrderStatus = "paid"
	StatusInProduction    OrderStatus = "in_production"
	StatusDelivered       OrderStatus = "delivered"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRefunded        OrderStatus = "refunded"
)

// AllStatuses lists every known status in lifecycle order.
// Used by exhaustive table tests and by CLI validation.
var AllStatuses = []OrderStatus{
	StatusNew,
	StatusCollectingFacts,
	StatusDemoSent,
	StatusAwaitingPayment,
	StatusPaid,
	StatusInProduction,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
}

// KnownStatus reports whether s is part of the closed status enumeration.
func KnownStatus(s OrderStatus) bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ProductType identifies which product line an order belongs to.
// It decides how shared statuses fan out into distinct timer steps.
type ProductType string

const (
	ProductSong    ProductType = "song"
	ProductBook    ProductType = "book"
	ProductUnknown ProductType = ""
)

// Order is the business entity whose lifecycle drives the engine.
//
// Status is mutated only through the lifecycle state machine's Transition
// operation, never by direct field writes from unrelated code paths.
// Payload is free-form JSON owned by the order-intake surface; the engine
// only reads the product type out of it.
type Order struct {
	ID        string
	UserID    string
	Status    OrderStatus
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductTypeFromPayload extracts the product type from an order's free-form
// JSON payload. Recognized values are matched case-sensitively against the
// "product_type" key; anything else (including a malformed payload) yields
// ProductUnknown. The payload is treated as read-only.
func ProductTypeFromPayload(payload json.RawMessage) ProductType {
	if len(payload) == 0 {
		return ProductUnknown
	}

	var fields struct {
		ProductType string `json:"product_type"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ProductUnknown
	}

	switch ProductType(fields.ProductType) {
	case ProductSong:
		return ProductSong
	case ProductBook:
		return ProductBook
	default:
		return ProductUnknown
	}
}

// StatusChange is one immutable entry of the order status history.
// The history is append-only and reconstructs the order's timeline; it also
// answers "when did the current stage begin" when no timer row exists.
type StatusChange struct {
	ID        int64
	OrderID   string
	OldStatus OrderStatus
	NewStatus OrderStatus
	ChangedAt time.Time
}
