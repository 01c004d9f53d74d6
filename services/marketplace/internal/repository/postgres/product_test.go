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

func setupProductRepo(t *testing.T) (*ProductRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewProductRepository(mock), mock
}

var productTestColumns = []string{
	"id", "name", "description", "price", "stock",
	"category", "seller_id", "active", "created_at", "updated_at",
}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:          42,
		Name:        "Intro to Databases",
		Description: "Course textbook",
		Price:       4500,
		Stock:       12,
		Category:    domain.CategoryBook,
		SellerID:    "seller-9",
		Active:      true,
		CreatedAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func productRows(p domain.Product) *pgxmock.Rows {
	return pgxmock.NewRows(productTestColumns).
		AddRow(p.ID, p.Name, p.Description, p.Price, p.Stock,
			p.Category, p.SellerID, p.Active, p.CreatedAt, p.UpdatedAt)
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(p.ID).
		WillReturnRows(productRows(p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, p.Stock, result.Stock)
	assert.Equal(t, p.Price, result.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(int64(999)).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), 999)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetForUpdate_LocksRow(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id = .+ FOR UPDATE").
		WithArgs(p.ID).
		WillReturnRows(productRows(p))

	result, err := repo.GetForUpdate(context.Background(), mock, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Create_ReturnsGeneratedID(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	p := sampleProduct()
	p.ID = 0
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(p.Name, p.Description, p.Price, p.Stock, p.Category,
			p.SellerID, p.Active, p.CreatedAt, p.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	err := repo.Create(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_DecreaseStock_Guarded(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE products SET stock = stock - .+ AND stock >=").
		WithArgs(int64(42), 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.DecreaseStock(context.Background(), mock, 42, 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_DecreaseStock_Insufficient(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	// Zero rows means the non-negative guard rejected the decrement.
	mock.ExpectExec("UPDATE products SET stock = stock - .+ AND stock >=").
		WithArgs(int64(42), 50, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.DecreaseStock(context.Background(), mock, 42, 50)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_IncreaseStock(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs(int64(42), 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.IncreaseStock(context.Background(), mock, 42, 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Deactivate_NotFound(t *testing.T) {
	repo, mock := setupProductRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE products SET active = FALSE").
		WithArgs(int64(999), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Deactivate(context.Background(), 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
