package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unimarket/UniMarketGo/pkg/httputil"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/pkg/pagination"
	"github.com/unimarket/UniMarketGo/services/payment/internal/service"
)

// PaymentHandler exposes payment queries over HTTP. Charges happen on the
// event path only; there is no endpoint that creates a payment.
type PaymentHandler struct {
	service *service.PaymentService
	logger  *slog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(svc *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: logger}
}

// GetPayment handles GET /payments/{id}.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	ctx := r.Context()
	payment, err := h.service.GetPayment(ctx, id, middleware.UserIDFromContext(ctx), middleware.RoleFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// GetPaymentByOrder handles GET /payments/order/{orderID}.
func (h *PaymentHandler) GetPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	ctx := r.Context()
	payment, err := h.service.GetPaymentByOrder(ctx, orderID, middleware.UserIDFromContext(ctx), middleware.RoleFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// ListMyPayments handles GET /payments/my-payments.
func (h *PaymentHandler) ListMyPayments(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	userID := middleware.UserIDFromContext(r.Context())

	payments, total, err := h.service.ListMyPayments(r.Context(), userID, params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: pagination.NewResult(payments, total, params),
	})
}
