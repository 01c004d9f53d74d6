package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
	"github.com/unimarket/UniMarketGo/pkg/logger"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
)

// Topics of the order saga.
var (
	TopicOrderCreated     = pkgkafka.Topic("order", "created")
	TopicPaymentCompleted = pkgkafka.Topic("payment", "completed")
	TopicPaymentFailed    = pkgkafka.Topic("payment", "failed")
)

const (
	AggregateTypeOrder = "order"
	SourceMarketplace  = "marketplace-service"
)

// OrderCreatedData is the payload of an order.created event. It carries the
// full priced snapshot so the payment service never calls back for it.
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

// Producer publishes order saga events.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the marketplace service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishOrderCreated announces a freshly reserved order to the payment side.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		}
	}

	data := OrderCreatedData{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}

	evt, err := pkgkafka.NewEvent("order.created", strconv.FormatInt(order.ID, 10), AggregateTypeOrder, SourceMarketplace, data)
	if err != nil {
		return fmt.Errorf("build order.created event: %w", err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.kafka.Publish(ctx, TopicOrderCreated, evt)
}
