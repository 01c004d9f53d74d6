package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/repository"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order and its items using the caller's querier, filling
// in the generated IDs. The caller owns the surrounding transaction.
func (r *OrderRepository) Create(ctx context.Context, q database.Querier, o *domain.Order) error {
	orderQuery := `
		INSERT INTO orders (user_id, status, total_amount, payment_id, compensation_needed, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := q.QueryRow(ctx, orderQuery,
		o.UserID,
		o.Status,
		o.TotalAmount,
		o.PaymentID,
		o.CompensationNeeded,
		o.FailureReason,
		o.CreatedAt,
		o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := q.QueryRow(ctx, itemQuery,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order by its ID with items loaded.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `
		SELECT id, user_id, status, total_amount, payment_id, compensation_needed, failure_reason, created_at, updated_at
		FROM orders
		WHERE id = $1`

	var o domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.TotalAmount,
		&o.PaymentID,
		&o.CompensationNeeded,
		&o.FailureReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	items, err := r.GetItems(ctx, r.pool, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

// GetItems loads the line items of an order in insertion order.
func (r *OrderRepository) GetItems(ctx context.Context, q database.Querier, orderID int64) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return items, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, status, total_amount, payment_id, compensation_needed, failure_reason, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.TotalAmount,
			&o.PaymentID,
			&o.CompensationNeeded,
			&o.FailureReason,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	// Batch-load items for the page in one query.
	if len(orders) > 0 {
		orderIDs := make([]int64, len(orders))
		for i := range orders {
			orderIDs[i] = orders[i].ID
		}

		itemsQuery := `
			SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
			FROM order_items
			WHERE order_id = ANY($1)
			ORDER BY id`

		itemRows, err := r.pool.Query(ctx, itemsQuery, orderIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("batch load order items: %w", err)
		}
		defer itemRows.Close()

		itemsByOrderID := make(map[int64][]domain.OrderItem, len(orders))
		for itemRows.Next() {
			var item domain.OrderItem
			if err := itemRows.Scan(
				&item.ID,
				&item.OrderID,
				&item.ProductID,
				&item.ProductName,
				&item.Quantity,
				&item.UnitPrice,
				&item.TotalPrice,
			); err != nil {
				return nil, 0, fmt.Errorf("scan order item: %w", err)
			}
			itemsByOrderID[item.OrderID] = append(itemsByOrderID[item.OrderID], item)
		}
		if err := itemRows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate order item rows: %w", err)
		}

		for i := range orders {
			if items, ok := itemsByOrderID[orders[i].ID]; ok {
				orders[i].Items = items
			} else {
				orders[i].Items = []domain.OrderItem{}
			}
		}
	}

	return orders, totalCount, nil
}

// Complete moves the order from PAYMENT_PENDING to COMPLETED. The status
// guard makes the transition fire at most once across redeliveries.
func (r *OrderRepository) Complete(ctx context.Context, q database.Querier, id int64, paymentID string) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, payment_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	ct, err := q.Exec(ctx, query, domain.OrderStatusCompleted, paymentID, time.Now().UTC(), id, domain.OrderStatusPaymentPending)
	if err != nil {
		return false, fmt.Errorf("complete order: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Fail moves the order from PAYMENT_PENDING to FAILED with a reason and
// flags that its stock reservation was compensated.
func (r *OrderRepository) Fail(ctx context.Context, q database.Querier, id int64, reason string) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, failure_reason = $2, compensation_needed = TRUE, updated_at = $3
		WHERE id = $4 AND status = $5`

	ct, err := q.Exec(ctx, query, domain.OrderStatusFailed, reason, time.Now().UTC(), id, domain.OrderStatusPaymentPending)
	if err != nil {
		return false, fmt.Errorf("fail order: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Cancel moves the order from PAYMENT_PENDING to CANCELLED.
func (r *OrderRepository) Cancel(ctx context.Context, q database.Querier, id int64) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, compensation_needed = TRUE, updated_at = $2
		WHERE id = $3 AND status = $4`

	ct, err := q.Exec(ctx, query, domain.OrderStatusCancelled, time.Now().UTC(), id, domain.OrderStatusPaymentPending)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
