package repository

import (
	"context"

	"github.com/unimarket/UniMarketGo/pkg/database"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// ProductFilter defines filter criteria for listing products.
type ProductFilter struct {
	Category   *string
	SellerID   *string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// OrderRepository defines order persistence. Methods taking a
// database.Querier join the caller's transaction; the saga transitions are
// guarded by the current status so they report whether they actually fired.
type OrderRepository interface {
	// Create inserts the order and its items, filling in generated IDs.
	Create(ctx context.Context, q database.Querier, order *domain.Order) error

	// GetByID retrieves an order with its items.
	GetByID(ctx context.Context, id int64) (*domain.Order, error)

	// GetItems loads the line items of an order in insertion order.
	GetItems(ctx context.Context, q database.Querier, orderID int64) ([]domain.OrderItem, error)

	// List returns orders matching the filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// Complete moves PAYMENT_PENDING to COMPLETED and records the payment.
	// Returns false when the order is missing or not in PAYMENT_PENDING.
	Complete(ctx context.Context, q database.Querier, id int64, paymentID string) (bool, error)

	// Fail moves PAYMENT_PENDING to FAILED with a reason. Returns false when
	// the guard does not match.
	Fail(ctx context.Context, q database.Querier, id int64, reason string) (bool, error)

	// Cancel moves PAYMENT_PENDING to CANCELLED. Returns false when the guard
	// does not match.
	Cancel(ctx context.Context, q database.Querier, id int64) (bool, error)
}

// ProductRepository defines product catalog and stock ledger persistence.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)

	// GetForUpdate loads a product under a row lock. Must run inside the
	// caller's transaction.
	GetForUpdate(ctx context.Context, q database.Querier, id int64) (*domain.Product, error)

	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)
	Update(ctx context.Context, product *domain.Product) error

	// DecreaseStock atomically subtracts quantity, guarded so stock never
	// goes negative. Returns errors.ErrInsufficientStock when the guard
	// does not match.
	DecreaseStock(ctx context.Context, q database.Querier, id int64, quantity int) error

	// IncreaseStock atomically adds quantity back.
	IncreaseStock(ctx context.Context, q database.Querier, id int64, quantity int) error

	// Deactivate soft-deletes the product so existing order items keep
	// their reference.
	Deactivate(ctx context.Context, id int64) error
}
