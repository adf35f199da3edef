package events

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPublishing(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := toPublishing(Event{
		Type:       PaymentStatusChanged,
		EntityID:   "pay-1",
		Data:       map[string]interface{}{"to": "success"},
		OccurredAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, PaymentStatusChanged, p.Type)
	assert.Equal(t, at, p.Timestamp)

	var decoded Event
	require.NoError(t, json.Unmarshal(p.Body, &decoded))
	assert.Equal(t, "pay-1", decoded.EntityID)
	assert.Equal(t, "success", decoded.Data["to"])
}

func TestToPublishing_StampsTime(t *testing.T) {
	p, err := toPublishing(Event{Type: OrderCreated})
	require.NoError(t, err)
	assert.False(t, p.Timestamp.IsZero())
}
