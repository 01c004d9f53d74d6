package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository"
)

const paymentColumns = "id, order_id, user_id, amount, method, status, transaction_id, failure_reason, created_at, updated_at"

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool database.DBTX
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool database.DBTX) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts the payment and fills the generated ID. The unique index on
// order_id turns concurrent inserts for the same order into ErrAlreadyExists.
func (r *PaymentRepository) Create(ctx context.Context, q database.Querier, p *domain.Payment) error {
	query := `
		INSERT INTO payments (order_id, user_id, amount, method, status, transaction_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := q.QueryRow(ctx, query,
		p.OrderID,
		p.UserID,
		p.Amount,
		p.Method,
		p.Status,
		p.TransactionID,
		p.FailureReason,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.AlreadyExists("payment", "order_id", p.OrderID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	return r.scanPayment(r.pool.QueryRow(ctx, query, id), id)
}

// GetByOrderID retrieves the payment for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE order_id = $1", paymentColumns)

	var p domain.Payment
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&p.TransactionID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment for order", orderID)
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

// List returns payments matching the given filter with the total count.
func (r *PaymentRepository) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, int, error) {
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
		SELECT %s, count(*) OVER() AS total_count
		FROM payments
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		paymentColumns, whereClause, argIndex, argIndex+1,
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
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var totalCount int
	payments := make([]*domain.Payment, 0)

	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&p.UserID,
			&p.Amount,
			&p.Method,
			&p.Status,
			&p.TransactionID,
			&p.FailureReason,
			&p.CreatedAt,
			&p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, totalCount, nil
}

// MarkCompleted moves the payment from PROCESSING to COMPLETED. The status
// guard makes the transition fire at most once across redeliveries.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, q database.Querier, id int64, transactionID string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, transaction_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	ct, err := q.Exec(ctx, query, domain.PaymentStatusCompleted, transactionID, time.Now().UTC(), id, domain.PaymentStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed moves the payment from PROCESSING to FAILED with a reason.
func (r *PaymentRepository) MarkFailed(ctx context.Context, q database.Querier, id int64, reason string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	ct, err := q.Exec(ctx, query, domain.PaymentStatusFailed, reason, time.Now().UTC(), id, domain.PaymentStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row, id int64) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&p.TransactionID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment", id)
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
