package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
)

// PaymentProcessor drives a charge attempt for a newly created order.
type PaymentProcessor interface {
	ProcessOrderCreated(ctx context.Context, orderID int64, userID string, amount int64) error
}

// Consumer processes order.created events for the payment service.
type Consumer struct {
	processor PaymentProcessor
	logger    *slog.Logger
}

// NewConsumer creates a new event consumer for the payment service.
func NewConsumer(processor PaymentProcessor, logger *slog.Logger) *Consumer {
	return &Consumer{processor: processor, logger: logger}
}

// HandleOrderCreated charges the order. Processing errors propagate so the
// consumer retries and eventually dead-letters the message; a decline is a
// processed outcome, not an error.
func (c *Consumer) HandleOrderCreated(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCreatedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal order.created data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.created event",
		slog.Int64("order_id", data.OrderID),
		slog.String("user_id", data.UserID),
		slog.Int64("total_amount", data.TotalAmount),
		slog.String("event_id", event.EventID),
	)

	if err := c.processor.ProcessOrderCreated(ctx, data.OrderID, data.UserID, data.TotalAmount); err != nil {
		return fmt.Errorf("process order %d: %w", data.OrderID, err)
	}

	return nil
}
