package audit

import (
	"context"
	"time"
)

// Entry is one audit record about an entity.
type Entry struct {
	ID        string                 `bson:"_id,omitempty" json:"id,omitempty"`
	Service   string                 `bson:"service" json:"service"`
	Action    string                 `bson:"action" json:"action"`
	EntityID  string                 `bson:"entity_id" json:"entity_id"`
	Actor     string                 `bson:"actor,omitempty" json:"actor,omitempty"`
	Data      map[string]interface{} `bson:"data" json:"data"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
}

// Actions
const (
	ActionOrderCreated         = "create_order"
	ActionOrderStatusChanged   = "update_order_status"
	ActionPaymentIntentCreated = "create_payment_intent"
	ActionPaymentStatusChanged = "update_payment_status"
	ActionPaymentsExpired      = "expire_payments"
)

// Recorder never fails the caller; implementations log their own errors.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	History(ctx context.Context, entityID string, limit int64) ([]*Entry, error)
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}

func (NopRecorder) History(context.Context, string, int64) ([]*Entry, error) {
	return nil, nil
}
