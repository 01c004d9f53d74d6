package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
)

func setupOrderRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewOrderRepository(mock), mock
}

var orderTestColumns = []string{
	"id", "user_id", "status", "total_amount", "payment_id",
	"compensation_needed", "failure_reason", "created_at", "updated_at",
}

var itemTestColumns = []string{
	"id", "order_id", "product_id", "product_name", "quantity", "unit_price", "total_price",
}

func sampleOrder() domain.Order {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:                 10,
		UserID:             "student-1",
		Status:             domain.OrderStatusPaymentPending,
		TotalAmount:        9000,
		CompensationNeeded: false,
		CreatedAt:          now,
		UpdatedAt:          now,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 10, ProductID: 42, ProductName: "Intro to Databases", Quantity: 2, UnitPrice: 4500, TotalPrice: 9000},
		},
	}
}

func TestOrderRepository_Create_FillsGeneratedIDs(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()
	o.ID = 0
	o.Items[0].ID = 0
	o.Items[0].OrderID = 0

	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(o.UserID, o.Status, o.TotalAmount, o.PaymentID,
			o.CompensationNeeded, o.FailureReason, o.CreatedAt, o.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))

	item := o.Items[0]
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(int64(10), item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	err := repo.Create(context.Background(), mock, &o)
	require.NoError(t, err)
	assert.Equal(t, int64(10), o.ID)
	assert.Equal(t, int64(10), o.Items[0].OrderID)
	assert.Equal(t, int64(1), o.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_LoadsItems(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(orderTestColumns).
			AddRow(o.ID, o.UserID, o.Status, o.TotalAmount, o.PaymentID,
				o.CompensationNeeded, o.FailureReason, o.CreatedAt, o.UpdatedAt))

	item := o.Items[0]
	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(itemTestColumns).
			AddRow(item.ID, item.OrderID, item.ProductID, item.ProductName,
				item.Quantity, item.UnitPrice, item.TotalPrice))

	result, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Status, result.Status)
	require.Len(t, result.Items, 1)
	assert.Equal(t, item.ProductID, result.Items[0].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), 404)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Complete_GuardMatches(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	// Completion leaves compensation_needed alone; no stock was restored.
	mock.ExpectExec("UPDATE orders SET status = .+, payment_id = .+, updated_at").
		WithArgs(domain.OrderStatusCompleted, "pay-55", pgxmock.AnyArg(),
			int64(10), domain.OrderStatusPaymentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	transitioned, err := repo.Complete(context.Background(), mock, 10, "pay-55")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Complete_GuardMisses(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	// Already terminal: the guarded update affects no rows.
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(domain.OrderStatusCompleted, "pay-55", pgxmock.AnyArg(),
			int64(10), domain.OrderStatusPaymentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	transitioned, err := repo.Complete(context.Background(), mock, 10, "pay-55")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Fail_GuardMatches(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE orders SET status = .+, compensation_needed = TRUE").
		WithArgs(domain.OrderStatusFailed, "card declined", pgxmock.AnyArg(),
			int64(10), domain.OrderStatusPaymentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	transitioned, err := repo.Fail(context.Background(), mock, 10, "card declined")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Cancel_GuardMisses(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE orders SET status = .+, compensation_needed = TRUE").
		WithArgs(domain.OrderStatusCancelled, pgxmock.AnyArg(),
			int64(10), domain.OrderStatusPaymentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	transitioned, err := repo.Cancel(context.Background(), mock, 10)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
