package models

import "time"

// Event types
const (
	EventTypeOrderCreated  = "ORDER_CREATED"
	EventTypeOrderPaid     = "ORDER_PAID"
	EventTypeOrderFailed   = "ORDER_FAILED"
	EventTypeOrderRefunded = "ORDER_REFUNDED"
	EventTypeTicketIssued  = "TICKET_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order and its gateway intent exist
type OrderCreatedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	IntentID string `json:"intent_id"`
	Amount   int64  `json:"amount"`
}

// OrderPaidEvent published once the PAID transition and Payment record are
// durable. Drives artifact generation in the background worker.
type OrderPaidEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	ChargeID string `json:"charge_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// OrderFailedEvent published when the gateway reports a failed charge
type OrderFailedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	IntentID string `json:"intent_id"`
	Reason   string `json:"reason"`
}

// OrderRefundedEvent published on PAID -> REFUNDED
type OrderRefundedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	ChargeID string `json:"charge_id"`
}

// TicketIssuedEvent published once the ticket artifact URL is stored
type TicketIssuedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	ChargeID    string `json:"charge_id"`
	ArtifactURL string `json:"artifact_url"`
}
