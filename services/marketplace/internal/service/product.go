package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/repository"
)

// ProductService implements the catalog and stock ledger operations.
type ProductService struct {
	db       database.DBTX
	products repository.ProductRepository
	logger   *slog.Logger
}

// NewProductService creates a new product service.
func NewProductService(db database.DBTX, products repository.ProductRepository, logger *slog.Logger) *ProductService {
	return &ProductService{db: db, products: products, logger: logger}
}

// CreateProductInput holds the parameters for creating a product.
type CreateProductInput struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"required,gt=0"`
	Stock       int    `json:"stock" validate:"gte=0"`
	Category    string `json:"category" validate:"required"`
}

// UpdateProductInput holds the mutable product fields.
type UpdateProductInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Price       *int64  `json:"price,omitempty" validate:"omitempty,gt=0"`
	Category    *string `json:"category,omitempty"`
}

// CreateProduct adds a catalog entry owned by the calling seller.
func (s *ProductService) CreateProduct(ctx context.Context, sellerID string, input CreateProductInput) (*domain.Product, error) {
	category := strings.ToUpper(input.Category)
	if !domain.IsValidCategory(category) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid category %q, must be one of: %s",
			input.Category, strings.Join(domain.ValidCategories(), ", ")))
	}

	now := time.Now().UTC()
	product := &domain.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		Category:    category,
		SellerID:    sellerID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product created",
		slog.Int64("product_id", product.ID),
		slog.String("seller_id", sellerID),
		slog.String("category", category),
	)

	return product, nil
}

// GetProduct retrieves a product by ID.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.GetByID(ctx, id)
}

// ListProducts returns active products, optionally filtered by category.
func (s *ProductService) ListProducts(ctx context.Context, category string, page, perPage int) ([]domain.Product, int, error) {
	filter := repository.ProductFilter{
		ActiveOnly: true,
		Page:       page,
		PerPage:    perPage,
	}
	if category != "" {
		c := strings.ToUpper(category)
		if !domain.IsValidCategory(c) {
			return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid category %q", category))
		}
		filter.Category = &c
	}

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// UpdateProduct edits catalog fields. Only the owning seller or an admin may
// update a product; stock is adjusted separately.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, callerID, callerRole string, input UpdateProductInput) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSeller(product, callerID, callerRole); err != nil {
		return nil, err
	}

	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Category != nil {
		category := strings.ToUpper(*input.Category)
		if !domain.IsValidCategory(category) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid category %q", *input.Category))
		}
		product.Category = category
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product updated", slog.Int64("product_id", id))
	return product, nil
}

// AdjustStock applies a signed delta to the stock ledger. Negative deltas go
// through the non-negative guard, so stock can never be driven below zero.
func (s *ProductService) AdjustStock(ctx context.Context, id int64, delta int, callerID, callerRole string) (*domain.Product, error) {
	if delta == 0 {
		return nil, apperrors.InvalidInput("stock delta must be non-zero")
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSeller(product, callerID, callerRole); err != nil {
		return nil, err
	}

	if delta > 0 {
		err = s.products.IncreaseStock(ctx, s.db, id, delta)
	} else {
		err = s.products.DecreaseStock(ctx, s.db, id, -delta)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.Int64("product_id", id),
		slog.Int("delta", delta),
	)

	return s.products.GetByID(ctx, id)
}

// DeactivateProduct soft-deletes a product so open orders keep referring to
// it. Stock already reserved by pending orders is unaffected.
func (s *ProductService) DeactivateProduct(ctx context.Context, id int64, callerID, callerRole string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeSeller(product, callerID, callerRole); err != nil {
		return err
	}

	if err := s.products.Deactivate(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "product deactivated", slog.Int64("product_id", id))
	return nil
}

func (s *ProductService) authorizeSeller(product *domain.Product, callerID, callerRole string) error {
	if product.SellerID != callerID && callerRole != middleware.RoleAdmin {
		return apperrors.Forbidden("you can only manage your own products")
	}
	return nil
}
