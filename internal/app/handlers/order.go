package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/service"
)

// CheckoutRequest адрес проверяет сервис, после проверок корзины и остатков
type CheckoutRequest struct {
	DeliveryAddressID int64 `json:"delivery_address_id" validate:"gte=0"`
}

type CheckoutResponse struct {
	Success bool  `json:"success"`
	OrderID int64 `json:"orderId"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderLineResponse struct {
	BookID    int64  `json:"book_id"`
	BookTitle string `json:"book_title"`
	SellerID  int64  `json:"seller_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type InvoiceResponse struct {
	ID       int64     `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
}

type OrderResponse struct {
	ID                int64               `json:"id"`
	BuyerID           int64               `json:"buyer_id"`
	DeliveryAddressID int64               `json:"delivery_address_id"`
	OrderedAt         time.Time           `json:"ordered_at"`
	Status            string              `json:"status"`
	Total             string              `json:"total"`
	Lines             []OrderLineResponse `json:"lines"`
	Invoice           *InvoiceResponse    `json:"invoice,omitempty"`
}

type OrderListResponse struct {
	Success bool            `json:"success"`
	Orders  []OrderResponse `json:"orders"`
}

type OrderDetailsResponse struct {
	Success bool          `json:"success"`
	Order   OrderResponse `json:"order"`
}

func newOrderResponse(order *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:                order.ID,
		BuyerID:           order.BuyerID,
		DeliveryAddressID: order.AddressID,
		OrderedAt:         order.OrderedAt,
		Status:            string(order.Status),
		Total:             order.Total.StringFixed(2),
		Lines:             make([]OrderLineResponse, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			BookID:    line.BookID,
			BookTitle: line.BookTitle,
			SellerID:  line.SellerID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}
	if order.Invoice != nil {
		resp.Invoice = &InvoiceResponse{ID: order.Invoice.ID, IssuedAt: order.Invoice.IssuedAt}
	}
	return resp
}

func newOrderListResponse(orders []*models.Order) OrderListResponse {
	resp := OrderListResponse{Success: true, Orders: make([]OrderResponse, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, newOrderResponse(order))
	}
	return resp
}

// CheckoutHandler превращает корзину текущего пользователя в заказ
func CheckoutHandler(log *slog.Logger, checkoutService service.CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		var req CheckoutRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		orderID, err := checkoutService.PlaceOrder(r.Context(), actor, req.DeliveryAddressID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, CheckoutResponse{Success: true, OrderID: orderID})
	}
}

func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		orders, err := orderService.ListOrders(r.Context(), actor)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, newOrderListResponse(orders))
	}
}

func IncomingOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.IncomingOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		orders, err := orderService.IncomingOrders(r.Context(), actor)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, newOrderListResponse(orders))
	}
}

func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "orderID")
		if !ok {
			return
		}

		order, err := orderService.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, OrderDetailsResponse{Success: true, Order: newOrderResponse(order)})
	}
}

// UpdateOrderStatusHandler меняет статус заказа. Отмена возвращает книги на склад
func UpdateOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "orderID")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		if err := orderService.UpdateStatus(r.Context(), actor, orderID, models.OrderStatus(req.Status)); err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, MessageResponse{Success: true, Message: "order status updated"})
	}
}

func DeleteOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "orderID")
		if !ok {
			return
		}

		if err := orderService.DeleteOrder(r.Context(), actor, orderID); err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, MessageResponse{Success: true, Message: "order deleted"})
	}
}
