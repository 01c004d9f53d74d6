package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
	"github.com/unimarket/UniMarketGo/pkg/logger"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
)

// Topics of the order saga.
var (
	TopicOrderCreated     = pkgkafka.Topic("order", "created")
	TopicPaymentCompleted = pkgkafka.Topic("payment", "completed")
	TopicPaymentFailed    = pkgkafka.Topic("payment", "failed")
)

const (
	AggregateTypePayment = "payment"
	SourcePayment        = "payment-service"
)

// OrderCreatedData is the payload of an order.created event as published by
// the marketplace side. Field names are part of the wire contract.
type OrderCreatedData struct {
	OrderID     int64           `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderItemData is the event payload for a priced line item.
type OrderItemData struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

// PaymentCompletedData is the payload of a payment.completed event.
type PaymentCompletedData struct {
	PaymentID     int64  `json:"payment_id"`
	OrderID       int64  `json:"order_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// PaymentFailedData is the payload of a payment.failed event.
type PaymentFailedData struct {
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// Producer publishes payment result events. Messages are keyed by the order
// ID so both results for an order land in the same partition.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the payment service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishPaymentCompleted announces a successful charge.
func (p *Producer) PublishPaymentCompleted(ctx context.Context, payment *domain.Payment) error {
	data := PaymentCompletedData{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
	}

	evt, err := pkgkafka.NewEvent("payment.completed", strconv.FormatInt(payment.OrderID, 10), AggregateTypePayment, SourcePayment, data)
	if err != nil {
		return fmt.Errorf("build payment.completed event: %w", err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.kafka.Publish(ctx, TopicPaymentCompleted, evt)
}

// PublishPaymentFailed announces a declined or timed-out charge so the
// marketplace can compensate.
func (p *Producer) PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error {
	data := PaymentFailedData{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Reason:    payment.FailureReason,
	}

	evt, err := pkgkafka.NewEvent("payment.failed", strconv.FormatInt(payment.OrderID, 10), AggregateTypePayment, SourcePayment, data)
	if err != nil {
		return fmt.Errorf("build payment.failed event: %w", err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.kafka.Publish(ctx, TopicPaymentFailed, evt)
}
