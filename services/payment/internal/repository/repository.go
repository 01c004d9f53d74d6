package repository

import (
	"context"

	"github.com/unimarket/UniMarketGo/pkg/database"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
)

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	// Create inserts the payment and fills the generated ID. The unique
	// order_id constraint surfaces as ErrAlreadyExists.
	Create(ctx context.Context, q database.Querier, payment *domain.Payment) error

	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]*domain.Payment, int, error)

	// MarkCompleted moves a PROCESSING payment to COMPLETED with the
	// provider transaction ID. Returns false when the guard missed.
	MarkCompleted(ctx context.Context, q database.Querier, id int64, transactionID string) (bool, error)

	// MarkFailed moves a PROCESSING payment to FAILED with a reason.
	MarkFailed(ctx context.Context, q database.Querier, id int64, reason string) (bool, error)
}
