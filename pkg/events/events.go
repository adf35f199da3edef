package events

import (
	"context"
	"time"
)

// Routing keys.
const (
	OrderCreated         = "order.created"
	OrderConfirmed       = "order.confirmed"
	PaymentCreated       = "payment.created"
	PaymentStatusChanged = "payment.status_changed"
)

// Event is the JSON envelope sent to subscribers.
type Event struct {
	Type       string                 `json:"type"`
	EntityID   string                 `json:"entity_id"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
