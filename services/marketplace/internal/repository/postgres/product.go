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

const productColumns = "id, name, description, price, stock, category, seller_id, active, created_at, updated_at"

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a new product and fills in the generated ID.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, category, seller_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		p.Name,
		p.Description,
		p.Price,
		p.Stock,
		p.Category,
		p.SellerID,
		p.Active,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE id = $1", productColumns)
	return r.scanProduct(r.pool.QueryRow(ctx, query, id), id)
}

// GetForUpdate loads a product under FOR UPDATE. The row lock serializes
// concurrent stock reservations for the same product.
func (r *ProductRepository) GetForUpdate(ctx context.Context, q database.Querier, id int64) (*domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE id = $1 FOR UPDATE", productColumns)
	return r.scanProduct(q.QueryRow(ctx, query, id), id)
}

func (r *ProductRepository) scanProduct(row pgx.Row, id int64) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.Category,
		&p.SellerID,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

// List returns products matching the given filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}
	if filter.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", argIndex))
		args = append(args, *filter.SellerID)
		argIndex++
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, argIndex, argIndex+1,
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
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var totalCount int
	products := make([]domain.Product, 0)

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.Stock,
			&p.Category,
			&p.SellerID,
			&p.Active,
			&p.CreatedAt,
			&p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, totalCount, nil
}

// Update persists mutable product fields. Stock is managed separately by the
// Increase/DecreaseStock ledger operations.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, category = $4, updated_at = $5
		WHERE id = $6`

	ct, err := r.pool.Exec(ctx, query, p.Name, p.Description, p.Price, p.Category, time.Now().UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}

	return nil
}

// DecreaseStock subtracts quantity with a non-negative guard. Zero rows
// affected means the product is missing or short on stock.
func (r *ProductRepository) DecreaseStock(ctx context.Context, q database.Querier, id int64, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND stock >= $2`

	ct, err := q.Exec(ctx, query, id, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("decrease stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrInsufficientStock
	}

	return nil
}

// IncreaseStock adds quantity back to the ledger.
func (r *ProductRepository) IncreaseStock(ctx context.Context, q database.Querier, id int64, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1`

	ct, err := q.Exec(ctx, query, id, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increase stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}

	return nil
}

// Deactivate flips the active flag off, keeping the row for order items.
func (r *ProductRepository) Deactivate(ctx context.Context, id int64) error {
	query := `
		UPDATE products
		SET active = FALSE, updated_at = $2
		WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}

	return nil
}
