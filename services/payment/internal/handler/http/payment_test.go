package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unimarket/UniMarketGo/pkg/database"
	apperrors "github.com/unimarket/UniMarketGo/pkg/errors"
	"github.com/unimarket/UniMarketGo/pkg/health"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/services/payment/internal/domain"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository"
	"github.com/unimarket/UniMarketGo/services/payment/internal/service"
)

// ============================================================================
// Mocks
// ============================================================================

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, q database.Querier, payment *domain.Payment) error {
	args := m.Called(ctx, q, payment)
	return args.Error(0)
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepo) GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.Payment), args.Int(1), args.Error(2)
}

func (m *mockPaymentRepo) MarkCompleted(ctx context.Context, q database.Querier, id int64, transactionID string) (bool, error) {
	args := m.Called(ctx, q, id, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepo) MarkFailed(ctx context.Context, q database.Querier, id int64, reason string) (bool, error) {
	args := m.Called(ctx, q, id, reason)
	return args.Bool(0), args.Error(1)
}

type nopPublisher struct{}

func (nopPublisher) PublishPaymentCompleted(context.Context, *domain.Payment) error { return nil }
func (nopPublisher) PublishPaymentFailed(context.Context, *domain.Payment) error    { return nil }

type nopProvider struct{}

func (nopProvider) Name() string { return "nop" }
func (nopProvider) Charge(context.Context, *provider.ChargeInput) (*provider.ChargeResult, error) {
	return &provider.ChargeResult{Status: provider.StatusSucceeded}, nil
}

// ============================================================================
// Helpers
// ============================================================================

type fixture struct {
	router   http.Handler
	payments *mockPaymentRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := database.NewMockPool()
	require.NoError(t, err)

	payments := new(mockPaymentRepo)
	svc := service.NewPaymentService(db, payments, nopProvider{}, nopPublisher{}, time.Second, logger)

	router := NewRouter(svc, health.NewHandler(), logger)
	return &fixture{router: router, payments: payments}
}

func doRequest(t *testing.T, router http.Handler, method, path string, userID, role string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func completedPayment() *domain.Payment {
	return &domain.Payment{
		ID:            11,
		OrderID:       101,
		UserID:        "student-1",
		Amount:        6200,
		Method:        domain.PaymentMethodCampusCard,
		Status:        domain.PaymentStatusCompleted,
		TransactionID: "txn-abc",
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestGetPaymentEndpoint_OwnerAllowed(t *testing.T) {
	f := newFixture(t)

	f.payments.On("GetByID", mock.Anything, int64(11)).Return(completedPayment(), nil)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/11",
		"student-1", middleware.RoleStudent)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, domain.PaymentStatusCompleted, data["status"])
	assert.Equal(t, "txn-abc", data["transaction_id"])
}

func TestGetPaymentEndpoint_ForbiddenForStranger(t *testing.T) {
	f := newFixture(t)

	f.payments.On("GetByID", mock.Anything, int64(11)).Return(completedPayment(), nil)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/11",
		"student-2", middleware.RoleStudent)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetPaymentEndpoint_AdminAllowed(t *testing.T) {
	f := newFixture(t)

	f.payments.On("GetByID", mock.Anything, int64(11)).Return(completedPayment(), nil)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/11",
		"admin-1", middleware.RoleAdmin)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPaymentEndpoint_NotFound(t *testing.T) {
	f := newFixture(t)

	f.payments.On("GetByID", mock.Anything, int64(404)).Return(nil, apperrors.NotFound("payment", 404))

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/404",
		"student-1", middleware.RoleStudent)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPaymentEndpoint_BadID(t *testing.T) {
	f := newFixture(t)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/abc",
		"student-1", middleware.RoleStudent)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPaymentEndpoint_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/11", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetPaymentByOrderEndpoint(t *testing.T) {
	f := newFixture(t)

	f.payments.On("GetByOrderID", mock.Anything, int64(101)).Return(completedPayment(), nil)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/order/101",
		"student-1", middleware.RoleStudent)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, float64(101), data["order_id"])
}

func TestListMyPaymentsEndpoint(t *testing.T) {
	f := newFixture(t)

	f.payments.On("List", mock.Anything, mock.MatchedBy(func(filter repository.PaymentFilter) bool {
		return filter.UserID != nil && *filter.UserID == "student-1"
	})).Return([]*domain.Payment{completedPayment()}, 1, nil)

	rec := doRequest(t, f.router, http.MethodGet, "/api/v1/payments/my-payments",
		"student-1", middleware.RoleStudent)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total_count"])
}
