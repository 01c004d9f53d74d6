package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/domain"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/repository"
)

// EventPublisher publishes order saga events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
}

// OrderService orchestrates the order side of the payment saga. Stock
// reservation and order persistence always share one transaction; the
// Kafka publish happens after commit and is never rolled back.
type OrderService struct {
	db       database.DBTX
	orders   repository.OrderRepository
	products repository.ProductRepository
	producer EventPublisher
	logger   *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(db database.DBTX, orders repository.OrderRepository, products repository.ProductRepository, producer EventPublisher, logger *slog.Logger) *OrderService {
	return &OrderService{
		db:       db,
		orders:   orders,
		products: products,
		producer: producer,
		logger:   logger,
	}
}

// CreateOrderItemInput is one requested line of a new order.
type CreateOrderItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CreateOrder reserves stock for every item under row locks, snapshots
// prices, persists the order as PAYMENT_PENDING and announces it to the
// payment service. Any stock shortfall aborts the whole transaction.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, inputs []CreateOrderItemInput) (*domain.Order, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	if len(inputs) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one item")
	}
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity for product %d must be positive", in.ProductID))
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(inputs))
	var total int64

	for _, in := range inputs {
		product, err := s.products.GetForUpdate(ctx, tx, in.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Active {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %d is no longer available", product.ID))
		}
		if !product.HasStock(in.Quantity) {
			return nil, apperrors.InsufficientStock(product.ID, in.Quantity, product.Stock)
		}

		if err := s.products.DecreaseStock(ctx, tx, product.ID, in.Quantity); err != nil {
			return nil, err
		}

		item := domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			UnitPrice:   product.Price,
		}
		item.TotalPrice = item.LineTotal()
		total += item.TotalPrice
		items = append(items, item)
	}

	order := &domain.Order{
		UserID:      userID,
		Status:      domain.OrderStatusPaymentPending,
		Items:       items,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		// The reservation is committed; losing the event stalls the order
		// rather than corrupting state, so log loudly and move on.
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.Int64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// CompleteOrder finishes the saga for a successful payment. The guarded
// transition makes redelivered results no-ops, and a result for an order
// already failed or cancelled is ignored with a log line.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID int64, paymentID string) error {
	transitioned, err := s.orders.Complete(ctx, s.db, orderID, paymentID)
	if err != nil {
		return err
	}

	if !transitioned {
		return s.logGuardMiss(ctx, orderID, domain.OrderStatusCompleted)
	}

	s.logger.InfoContext(ctx, "order completed",
		slog.Int64("order_id", orderID),
		slog.String("payment_id", paymentID),
	)
	return nil
}

// FailOrder compensates a failed payment: the guarded transition to FAILED
// and the stock restores commit atomically, so a redelivered failure can
// never restore stock twice.
func (s *OrderService) FailOrder(ctx context.Context, orderID int64, reason string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transitioned, err := s.orders.Fail(ctx, tx, orderID, reason)
	if err != nil {
		return err
	}

	if !transitioned {
		return s.logGuardMiss(ctx, orderID, domain.OrderStatusFailed)
	}

	items, err := s.orders.GetItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.products.IncreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "order failed, stock restored",
		slog.Int64("order_id", orderID),
		slog.String("reason", reason),
		slog.Int("items_restored", len(items)),
	)
	return nil
}

// CancelOrder lets the owner abandon an order that has not completed yet,
// restoring its reserved stock.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, callerID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != callerID {
		return nil, apperrors.Forbidden("you can only cancel your own orders")
	}
	if order.Status == domain.OrderStatusCompleted {
		return nil, apperrors.Conflict("a completed order cannot be cancelled")
	}
	if order.IsTerminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("order is already %s", order.Status))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transitioned, err := s.orders.Cancel(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// A payment result won the race since the read above.
		return nil, apperrors.Conflict("order state changed, refresh and retry")
	}

	for _, item := range order.Items {
		if err := s.products.IncreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.Int64("order_id", orderID),
		slog.String("user_id", callerID),
	)

	order.Status = domain.OrderStatusCancelled
	order.CompensationNeeded = true
	return order, nil
}

// GetOrder returns an order visible to its owner or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, callerID, callerRole string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != callerID && callerRole != middleware.RoleAdmin {
		return nil, apperrors.Forbidden("you can only view your own orders")
	}
	return order, nil
}

// ListMyOrders returns the caller's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, userID string, page, perPage int) ([]domain.Order, int, error) {
	filter := repository.OrderFilter{
		UserID:  &userID,
		Page:    page,
		PerPage: perPage,
	}
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// logGuardMiss classifies a guarded transition that affected no rows:
// unknown orders surface as not found, duplicate deliveries of the same
// result are silently idempotent, conflicting results are ignored.
func (s *OrderService) logGuardMiss(ctx context.Context, orderID int64, target string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == target {
		s.logger.DebugContext(ctx, "duplicate payment result ignored",
			slog.Int64("order_id", orderID),
			slog.String("status", order.Status),
		)
		return nil
	}

	s.logger.WarnContext(ctx, "conflicting payment result ignored",
		slog.Int64("order_id", orderID),
		slog.String("status", order.Status),
		slog.String("attempted", target),
	)
	return nil
}
