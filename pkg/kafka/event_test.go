package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	type payload struct {
		OrderID int64 `json:"order_id"`
		Amount  int64 `json:"amount"`
	}

	event, err := NewEvent("unimarket.order.created", "42", "order", "marketplace-service", payload{OrderID: 42, Amount: 1999})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "unimarket.order.created", event.EventType)
	assert.Equal(t, "42", event.AggregateID)
	assert.Equal(t, "order", event.AggregateType)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, "marketplace-service", event.Source)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)

	var decoded payload
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, int64(42), decoded.OrderID)
	assert.Equal(t, int64(1999), decoded.Amount)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	event, err := NewEvent("unimarket.payment.failed", "7", "payment", "payment-service", map[string]string{"reason": "card declined"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-123")

	raw, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.EventType, decoded.EventType)
	assert.Equal(t, "corr-123", decoded.CorrelationID)
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "unimarket.order.created", Topic("order", "created"))
	assert.Equal(t, "unimarket.dlq.unimarket.order.created", DLQTopic(Topic("order", "created")))
}
