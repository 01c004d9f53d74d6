package domain

import "time"

// Order status constants. PAYMENT_PENDING means stock is reserved and the
// order is waiting on a payment result.
const (
	OrderStatusPending        = "PENDING"
	OrderStatusPaymentPending = "PAYMENT_PENDING"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusFailed         = "FAILED"
	OrderStatusCancelled      = "CANCELLED"
)

// Order represents a marketplace order.
type Order struct {
	ID                 int64       `json:"id"`
	UserID             string      `json:"user_id"`
	Status             string      `json:"status"`
	Items              []OrderItem `json:"items"`
	TotalAmount        int64       `json:"total_amount"`
	PaymentID          string      `json:"payment_id,omitempty"`
	CompensationNeeded bool        `json:"compensation_needed"`
	FailureReason      string      `json:"failure_reason,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// OrderItem is a priced line item. UnitPrice and TotalPrice are snapshots
// taken at order time; later product price changes do not affect them.
type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

// LineTotal computes the price of the line from its snapshot unit price.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ValidOrderStatuses returns all valid order statuses.
func ValidOrderStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaymentPending,
		OrderStatusCompleted,
		OrderStatusFailed,
		OrderStatusCancelled,
	}
}

// AllowedOrderTransitions defines the order status transition table.
func AllowedOrderTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:        {OrderStatusPaymentPending, OrderStatusCancelled},
		OrderStatusPaymentPending: {OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusCompleted:      {},
		OrderStatusFailed:         {},
		OrderStatusCancelled:      {},
	}
}

// CanTransitionTo checks whether the order may move to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	allowed, ok := AllowedOrderTransitions()[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order status admits no further transitions.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}
