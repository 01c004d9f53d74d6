package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository"
)

// EventPublisher publishes payment result events.
type EventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, payment *domain.Payment) error
	PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error
}

// PaymentService processes charges for created orders. Exactly one payment
// row exists per order; redeliveries of order.created re-announce the stored
// outcome instead of charging again.
type PaymentService struct {
	db            database.DBTX
	payments      repository.PaymentRepository
	provider      provider.Provider
	producer      EventPublisher
	chargeTimeout time.Duration
	logger        *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(db database.DBTX, payments repository.PaymentRepository, prov provider.Provider, producer EventPublisher, chargeTimeout time.Duration, logger *slog.Logger) *PaymentService {
	if chargeTimeout <= 0 {
		chargeTimeout = 5 * time.Second
	}
	return &PaymentService{
		db:            db,
		payments:      payments,
		provider:      prov,
		producer:      producer,
		chargeTimeout: chargeTimeout,
		logger:        logger,
	}
}

// ProcessOrderCreated charges an order once. The unique order_id constraint
// is the idempotency barrier: a redelivered event finds the existing row and
// only re-publishes its terminal result.
func (s *PaymentService) ProcessOrderCreated(ctx context.Context, orderID int64, userID string, amount int64) error {
	if amount <= 0 {
		return apperrors.InvalidInput(fmt.Sprintf("order %d has non-positive amount %d", orderID, amount))
	}

	existing, err := s.payments.GetByOrderID(ctx, orderID)
	if err == nil {
		return s.republishOutcome(ctx, existing)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Method:    domain.PaymentMethodCampusCard,
		Status:    domain.PaymentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.payments.Create(ctx, s.db, payment); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logger.InfoContext(ctx, "concurrent charge attempt lost the insert race, skipping",
				slog.Int64("order_id", orderID),
			)
			return nil
		}
		return err
	}

	result := s.charge(ctx, payment)
	if result.Succeeded() {
		return s.completePayment(ctx, payment, result.TransactionID)
	}
	return s.failPayment(ctx, payment, result.FailureReason)
}

// charge runs the provider call under the charge timeout. Every outcome is
// mapped to a result; an unreachable or hung provider counts as a decline so
// the saga reaches a terminal state.
func (s *PaymentService) charge(ctx context.Context, payment *domain.Payment) *provider.ChargeResult {
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	result, err := s.provider.Charge(chargeCtx, &provider.ChargeInput{
		OrderID: payment.OrderID,
		UserID:  payment.UserID,
		Amount:  payment.Amount,
		Method:  payment.Method,
	})
	if err != nil {
		reason := "payment provider unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "payment gateway timeout"
		}
		s.logger.ErrorContext(ctx, "charge attempt errored",
			slog.Int64("order_id", payment.OrderID),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return &provider.ChargeResult{Status: provider.StatusFailed, FailureReason: reason}
	}
	return result
}

func (s *PaymentService) completePayment(ctx context.Context, payment *domain.Payment, transactionID string) error {
	if transactionID == "" {
		transactionID = uuid.New().String()
	}

	ok, err := s.payments.MarkCompleted(ctx, s.db, payment.ID, transactionID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WarnContext(ctx, "payment already left PROCESSING, not completing",
			slog.Int64("payment_id", payment.ID),
			slog.Int64("order_id", payment.OrderID),
		)
		return nil
	}

	payment.Status = domain.PaymentStatusCompleted
	payment.TransactionID = transactionID

	s.logger.InfoContext(ctx, "payment completed",
		slog.Int64("payment_id", payment.ID),
		slog.Int64("order_id", payment.OrderID),
		slog.Int64("amount", payment.Amount),
	)

	if err := s.producer.PublishPaymentCompleted(ctx, payment); err != nil {
		// The row is committed; returning the error redelivers the event and
		// the republish path closes the gap.
		s.logger.ErrorContext(ctx, "failed to publish payment.completed",
			slog.Int64("payment_id", payment.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish payment.completed: %w", err)
	}
	return nil
}

func (s *PaymentService) failPayment(ctx context.Context, payment *domain.Payment, reason string) error {
	ok, err := s.payments.MarkFailed(ctx, s.db, payment.ID, reason)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WarnContext(ctx, "payment already left PROCESSING, not failing",
			slog.Int64("payment_id", payment.ID),
			slog.Int64("order_id", payment.OrderID),
		)
		return nil
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = reason

	s.logger.InfoContext(ctx, "payment failed",
		slog.Int64("payment_id", payment.ID),
		slog.Int64("order_id", payment.OrderID),
		slog.String("reason", reason),
	)

	if err := s.producer.PublishPaymentFailed(ctx, payment); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment.failed",
			slog.Int64("payment_id", payment.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish payment.failed: %w", err)
	}
	return nil
}

// republishOutcome re-announces the stored result for a redelivered
// order.created event. Status guards on the order side make the duplicate
// publish harmless. A payment still PROCESSING belongs to an in-flight
// attempt and is left alone.
func (s *PaymentService) republishOutcome(ctx context.Context, payment *domain.Payment) error {
	switch payment.Status {
	case domain.PaymentStatusCompleted:
		s.logger.InfoContext(ctx, "order already charged, republishing result",
			slog.Int64("payment_id", payment.ID),
			slog.Int64("order_id", payment.OrderID),
		)
		return s.producer.PublishPaymentCompleted(ctx, payment)
	case domain.PaymentStatusFailed:
		s.logger.InfoContext(ctx, "order already declined, republishing result",
			slog.Int64("payment_id", payment.ID),
			slog.Int64("order_id", payment.OrderID),
		)
		return s.producer.PublishPaymentFailed(ctx, payment)
	default:
		s.logger.InfoContext(ctx, "payment already in flight, skipping duplicate event",
			slog.Int64("payment_id", payment.ID),
			slog.Int64("order_id", payment.OrderID),
			slog.String("status", payment.Status),
		)
		return nil
	}
}

// GetPayment returns a payment visible to its owner or an admin.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID int64, callerID, callerRole string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != callerID && callerRole != middleware.RoleAdmin {
		return nil, apperrors.Forbidden("you can only view your own payments")
	}
	return payment, nil
}

// GetPaymentByOrder returns the payment for an order, owner or admin only.
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID int64, callerID, callerRole string) (*domain.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != callerID && callerRole != middleware.RoleAdmin {
		return nil, apperrors.Forbidden("you can only view your own payments")
	}
	return payment, nil
}

// ListMyPayments returns the caller's payments, newest first.
func (s *PaymentService) ListMyPayments(ctx context.Context, userID string, page, perPage int) ([]*domain.Payment, int, error) {
	if userID == "" {
		return nil, 0, apperrors.Unauthorized("missing user identity")
	}
	return s.payments.List(ctx, repository.PaymentFilter{
		UserID:  &userID,
		Page:    page,
		PerPage: perPage,
	})
}
