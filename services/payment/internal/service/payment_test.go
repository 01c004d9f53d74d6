package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository"
)

// --- Mocks ---

type mockPaymentRepository struct {
	mock.Mock
}

func (m *mockPaymentRepository) Create(ctx context.Context, q database.Querier, payment *domain.Payment) error {
	args := m.Called(ctx, q, payment)
	return args.Error(0)
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepository) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.Payment), args.Int(1), args.Error(2)
}

func (m *mockPaymentRepository) MarkCompleted(ctx context.Context, q database.Querier, id int64, transactionID string) (bool, error) {
	args := m.Called(ctx, q, id, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepository) MarkFailed(ctx context.Context, q database.Querier, id int64, reason string) (bool, error) {
	args := m.Called(ctx, q, id, reason)
	return args.Bool(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishPaymentCompleted(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *mockPublisher) PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

// stubProvider returns a canned result or error, optionally waiting so the
// charge deadline can expire first.
type stubProvider struct {
	result *provider.ChargeResult
	err    error
	delay  time.Duration
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Charge(ctx context.Context, input *provider.ChargeInput) (*provider.ChargeResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.result, p.err
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type paymentFixture struct {
	svc      *PaymentService
	db       pgxmock.PgxPoolIface
	payments *mockPaymentRepository
	pub      *mockPublisher
}

func newPaymentFixture(t *testing.T, prov provider.Provider, chargeTimeout time.Duration) *paymentFixture {
	t.Helper()
	db, err := database.NewMockPool()
	require.NoError(t, err)

	payments := new(mockPaymentRepository)
	pub := new(mockPublisher)
	svc := NewPaymentService(db, payments, prov, pub, chargeTimeout, newTestLogger())

	return &paymentFixture{svc: svc, db: db, payments: payments, pub: pub}
}

func processingPayment() *domain.Payment {
	return &domain.Payment{
		ID:      11,
		OrderID: 101,
		UserID:  "user-3",
		Amount:  6200,
		Method:  domain.PaymentMethodCampusCard,
		Status:  domain.PaymentStatusProcessing,
	}
}

// --- Tests ---

func TestProcessOrderCreated_SuccessfulChargePublishesCompleted(t *testing.T) {
	prov := &stubProvider{result: &provider.ChargeResult{
		TransactionID: "txn-abc",
		Status:        provider.StatusSucceeded,
	}}
	f := newPaymentFixture(t, prov, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).
		Return(nil, apperrors.NotFound("payment for order", 101))
	f.payments.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.OrderID == 101 && p.Amount == 6200 && p.Status == domain.PaymentStatusProcessing
	})).Run(func(args mock.Arguments) {
		args.Get(2).(*domain.Payment).ID = 11
	}).Return(nil)
	f.payments.On("MarkCompleted", mock.Anything, mock.Anything, int64(11), "txn-abc").Return(true, nil)
	f.pub.On("PublishPaymentCompleted", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.Status == domain.PaymentStatusCompleted && p.TransactionID == "txn-abc"
	})).Return(nil)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
	f.pub.AssertExpectations(t)
}

func TestProcessOrderCreated_DeclinePublishesFailed(t *testing.T) {
	prov := &stubProvider{result: &provider.ChargeResult{
		Status:        provider.StatusFailed,
		FailureReason: "card declined",
	}}
	f := newPaymentFixture(t, prov, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).
		Return(nil, apperrors.NotFound("payment for order", 101))
	f.payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(*domain.Payment).ID = 11
		}).Return(nil)
	f.payments.On("MarkFailed", mock.Anything, mock.Anything, int64(11), "card declined").Return(true, nil)
	f.pub.On("PublishPaymentFailed", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.Status == domain.PaymentStatusFailed && p.FailureReason == "card declined"
	})).Return(nil)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
	f.pub.AssertExpectations(t)
}

func TestProcessOrderCreated_TimeoutFailsWithGatewayTimeout(t *testing.T) {
	// The stub outlives the 10ms charge deadline, so the ctx expires first.
	prov := &stubProvider{delay: time.Second}
	f := newPaymentFixture(t, prov, 10*time.Millisecond)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).
		Return(nil, apperrors.NotFound("payment for order", 101))
	f.payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(*domain.Payment).ID = 11
		}).Return(nil)
	f.payments.On("MarkFailed", mock.Anything, mock.Anything, int64(11), "payment gateway timeout").Return(true, nil)
	f.pub.On("PublishPaymentFailed", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.FailureReason == "payment gateway timeout"
	})).Return(nil)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
	f.pub.AssertExpectations(t)
}

func TestProcessOrderCreated_RedeliveryRepublishesCompletedResult(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	existing := processingPayment()
	existing.Status = domain.PaymentStatusCompleted
	existing.TransactionID = "txn-abc"

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).Return(existing, nil)
	f.pub.On("PublishPaymentCompleted", mock.Anything, existing).Return(nil)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	f.payments.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.pub.AssertExpectations(t)
}

func TestProcessOrderCreated_InFlightDuplicateSkipped(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).Return(processingPayment(), nil)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.pub.AssertNotCalled(t, "PublishPaymentCompleted", mock.Anything, mock.Anything)
	f.pub.AssertNotCalled(t, "PublishPaymentFailed", mock.Anything, mock.Anything)
}

func TestProcessOrderCreated_InsertRaceSkipsCharge(t *testing.T) {
	prov := &stubProvider{result: &provider.ChargeResult{Status: provider.StatusSucceeded}}
	f := newPaymentFixture(t, prov, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).
		Return(nil, apperrors.NotFound("payment for order", 101))
	f.payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("payment", "order_id", 101))

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	require.NoError(t, err)
	f.payments.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.pub.AssertNotCalled(t, "PublishPaymentCompleted", mock.Anything, mock.Anything)
}

func TestProcessOrderCreated_PublishFailureSurfacesForRetry(t *testing.T) {
	prov := &stubProvider{result: &provider.ChargeResult{
		TransactionID: "txn-abc",
		Status:        provider.StatusSucceeded,
	}}
	f := newPaymentFixture(t, prov, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).
		Return(nil, apperrors.NotFound("payment for order", 101))
	f.payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(*domain.Payment).ID = 11
		}).Return(nil)
	f.payments.On("MarkCompleted", mock.Anything, mock.Anything, int64(11), "txn-abc").Return(true, nil)
	f.pub.On("PublishPaymentCompleted", mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 6200)
	assert.Error(t, err)
}

func TestProcessOrderCreated_RejectsNonPositiveAmount(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	err := f.svc.ProcessOrderCreated(context.Background(), 101, "user-3", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.payments.AssertNotCalled(t, "GetByOrderID", mock.Anything, mock.Anything)
}

func TestGetPayment_OwnerAndAdminAllowed(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	payment := processingPayment()
	f.payments.On("GetByID", mock.Anything, int64(11)).Return(payment, nil)

	got, err := f.svc.GetPayment(context.Background(), 11, "user-3", "STUDENT")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	got, err = f.svc.GetPayment(context.Background(), 11, "admin-1", "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = f.svc.GetPayment(context.Background(), 11, "stranger", "STUDENT")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGetPaymentByOrder_ForbiddenForStranger(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).Return(processingPayment(), nil)

	_, err := f.svc.GetPaymentByOrder(context.Background(), 101, "stranger", "FACULTY")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestListMyPayments_FiltersByUser(t *testing.T) {
	f := newPaymentFixture(t, &stubProvider{}, time.Second)

	f.payments.On("List", mock.Anything, mock.MatchedBy(func(filter repository.PaymentFilter) bool {
		return filter.UserID != nil && *filter.UserID == "user-3" && filter.Page == 2
	})).Return([]*domain.Payment{processingPayment()}, 21, nil)

	payments, total, err := f.svc.ListMyPayments(context.Background(), "user-3", 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	assert.Len(t, payments, 1)
}
