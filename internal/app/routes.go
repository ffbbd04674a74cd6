package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/bookstore/internal/app/handlers"
	"github.com/linemk/bookstore/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/bookstore/internal/lib/logger/handlers/urllog"
	"github.com/linemk/bookstore/internal/service"
)

// Services бизнес-слой, который обслуживает HTTP API
type Services struct {
	Auth     service.AuthServiceInterface
	Cart     service.CartService
	Checkout service.CheckoutService
	Orders   service.OrderService
}

// NewRouter собирает роутер API. metrics может быть nil, тогда /metrics не публикуется
func (a *App) NewRouter(svc Services, metrics http.Handler) http.Handler {
	log := a.Logger

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)

	if metrics != nil {
		router.Handle(a.Config.Telemetry.MetricsPath, metrics)
	}

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(log, svc.Auth))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware())

		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCartHandler(log, svc.Cart))
			r.Get("/count", handlers.CartCountHandler(log, svc.Cart))
			r.Post("/items", handlers.AddToCartHandler(log, svc.Cart))
			r.Patch("/items/{lineID}", handlers.UpdateCartQuantityHandler(log, svc.Cart))
			r.Delete("/items/{lineID}", handlers.RemoveFromCartHandler(log, svc.Cart))
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", handlers.CheckoutHandler(log, svc.Checkout))
			r.Get("/", handlers.ListOrdersHandler(log, svc.Orders))
			r.Get("/incoming", handlers.IncomingOrdersHandler(log, svc.Orders))
			r.Get("/{orderID}", handlers.GetOrderHandler(log, svc.Orders))
			r.Patch("/{orderID}/status", handlers.UpdateOrderStatusHandler(log, svc.Orders))
			r.Delete("/{orderID}", handlers.DeleteOrderHandler(log, svc.Orders))
		})
	})

	return router
}
