package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository"
)

func setupPaymentRepo(t *testing.T) (*PaymentRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewPaymentRepository(mock), mock
}

var paymentTestColumns = []string{
	"id", "order_id", "user_id", "amount", "method",
	"status", "transaction_id", "failure_reason", "created_at", "updated_at",
}

func samplePayment() domain.Payment {
	return domain.Payment{
		ID:        11,
		OrderID:   101,
		UserID:    "user-3",
		Amount:    6200,
		Method:    domain.PaymentMethodCampusCard,
		Status:    domain.PaymentStatusProcessing,
		CreatedAt: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
	}
}

func paymentRows(p domain.Payment) *pgxmock.Rows {
	return pgxmock.NewRows(paymentTestColumns).
		AddRow(p.ID, p.OrderID, p.UserID, p.Amount, p.Method,
			p.Status, p.TransactionID, p.FailureReason, p.CreatedAt, p.UpdatedAt)
}

func TestPaymentRepository_Create_ReturnsGeneratedID(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	p := samplePayment()
	p.ID = 0
	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(p.OrderID, p.UserID, p.Amount, p.Method, p.Status,
			p.TransactionID, p.FailureReason, p.CreatedAt, p.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	err := repo.Create(context.Background(), mock, &p)
	require.NoError(t, err)
	assert.Equal(t, int64(11), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_Create_DuplicateOrder(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	p := samplePayment()
	p.ID = 0
	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(p.OrderID, p.UserID, p.Amount, p.Method, p.Status,
			p.TransactionID, p.FailureReason, p.CreatedAt, p.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "payments_order_id_key"})

	err := repo.Create(context.Background(), mock, &p)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByOrderID_Success(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	p := samplePayment()
	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_id").
		WithArgs(p.OrderID).
		WillReturnRows(paymentRows(p))

	result, err := repo.GetByOrderID(context.Background(), p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, p.OrderID, result.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByOrderID_NotFound(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_id").
		WithArgs(int64(999)).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByOrderID(context.Background(), 999)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_List_FiltersByUser(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	p := samplePayment()
	rows := pgxmock.NewRows(append(paymentTestColumns, "total_count")).
		AddRow(p.ID, p.OrderID, p.UserID, p.Amount, p.Method,
			p.Status, p.TransactionID, p.FailureReason, p.CreatedAt, p.UpdatedAt, 1)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE user_id").
		WithArgs(p.UserID, 20, 0).
		WillReturnRows(rows)

	userID := p.UserID
	payments, total, err := repo.List(context.Background(), repository.PaymentFilter{
		UserID:  &userID,
		Page:    1,
		PerPage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, payments, 1)
	assert.Equal(t, p.ID, payments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_MarkCompleted_GuardMatch(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(domain.PaymentStatusCompleted, "txn-abc", pgxmock.AnyArg(), int64(11), domain.PaymentStatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.MarkCompleted(context.Background(), mock, 11, "txn-abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_MarkFailed_GuardMiss(t *testing.T) {
	repo, mock := setupPaymentRepo(t)
	defer mock.Close()

	// Zero rows means the payment already left PROCESSING.
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(domain.PaymentStatusFailed, "card declined", pgxmock.AnyArg(), int64(11), domain.PaymentStatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkFailed(context.Background(), mock, 11, "card declined")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
