package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
)

// OrderSaga defines the order-side saga operations the consumer drives.
type OrderSaga interface {
	CompleteOrder(ctx context.Context, orderID int64, paymentID string) error
	FailOrder(ctx context.Context, orderID int64, reason string) error
}

// Consumer processes payment result events for the marketplace service.
type Consumer struct {
	saga   OrderSaga
	logger *slog.Logger
}

// NewConsumer creates a new event consumer for the marketplace service.
func NewConsumer(saga OrderSaga, logger *slog.Logger) *Consumer {
	return &Consumer{saga: saga, logger: logger}
}

// HandlePaymentCompleted moves the order to COMPLETED. An order that no
// longer exists is logged and dropped so the message is not redelivered
// forever.
func (c *Consumer) HandlePaymentCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data PaymentCompletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal payment.completed data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing payment.completed event",
		slog.Int64("order_id", data.OrderID),
		slog.Int64("payment_id", data.PaymentID),
		slog.String("event_id", event.EventID),
	)

	err := c.saga.CompleteOrder(ctx, data.OrderID, strconv.FormatInt(data.PaymentID, 10))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.logger.WarnContext(ctx, "payment.completed for unknown order, dropping",
				slog.Int64("order_id", data.OrderID),
			)
			return nil
		}
		return fmt.Errorf("complete order %d: %w", data.OrderID, err)
	}

	return nil
}

// HandlePaymentFailed moves the order to FAILED and restores its stock.
func (c *Consumer) HandlePaymentFailed(ctx context.Context, event *pkgkafka.Event) error {
	var data PaymentFailedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal payment.failed data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing payment.failed event",
		slog.Int64("order_id", data.OrderID),
		slog.String("reason", data.Reason),
		slog.String("event_id", event.EventID),
	)

	err := c.saga.FailOrder(ctx, data.OrderID, data.Reason)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.logger.WarnContext(ctx, "payment.failed for unknown order, dropping",
				slog.Int64("order_id", data.OrderID),
			)
			return nil
		}
		return fmt.Errorf("fail order %d: %w", data.OrderID, err)
	}

	return nil
}
