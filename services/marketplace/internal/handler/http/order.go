package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unimarket/UniMarketGo/pkg/httputil"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/pkg/pagination"
	"github.com/unimarket/UniMarketGo/pkg/validator"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/service"
)

// OrderHandler exposes order operations over HTTP.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

type createOrderRequest struct {
	Items []service.CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())

	order, err := h.service.CreateOrder(r.Context(), userID, req.Items)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// GetOrder handles GET /orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	ctx := r.Context()
	order, err := h.service.GetOrder(ctx, id, middleware.UserIDFromContext(ctx), middleware.RoleFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// ListMyOrders handles GET /orders/my-orders.
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	userID := middleware.UserIDFromContext(r.Context())

	orders, total, err := h.service.ListMyOrders(r.Context(), userID, params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: pagination.NewResult(orders, total, params),
	})
}

// CancelOrder handles POST /orders/{id}/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id, middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
