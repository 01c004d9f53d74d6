package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unimarket/UniMarketGo/pkg/health"
	"github.com/unimarket/UniMarketGo/pkg/middleware"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/service"
)

// NewRouter creates a chi router with all marketplace routes registered.
func NewRouter(
	orderService *service.OrderService,
	productService *service.ProductService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("marketplace"))
	r.Use(middleware.Tracing("marketplace"))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	orderHandler := NewOrderHandler(orderService, logger)
	productHandler := NewProductHandler(productService, logger)

	r.Route("/api/v1/marketplace", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Identity())

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/my-orders", orderHandler.ListMyOrders)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Post("/{id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{id}", productHandler.GetProduct)

			// Catalog management is for faculty sellers and admins.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleFaculty, middleware.RoleAdmin))

				r.Post("/", productHandler.CreateProduct)
				r.Patch("/{id}", productHandler.UpdateProduct)
				r.Post("/{id}/stock", productHandler.AdjustStock)
				r.Delete("/{id}", productHandler.DeactivateProduct)
			})
		})
	})

	return r
}

// ContentTypeJSON sets the response content type for API routes.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
