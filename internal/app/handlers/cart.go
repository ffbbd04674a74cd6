package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/service"
)

// AddToCartRequest тело запроса на добавление книги. Количество по умолчанию 1
type AddToCartRequest struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	Quantity *int  `json:"quantity"`
}

// UpdateQuantityRequest quantity <= 0 удаляет строку
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartLineResponse struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	BookTitle string    `json:"book_title"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
	AddedAt   time.Time `json:"added_at"`
}

type CartResponse struct {
	Success   bool               `json:"success"`
	CartID    int64              `json:"cartId"`
	Lines     []CartLineResponse `json:"lines"`
	Total     string             `json:"cartTotalPrice"`
	ItemCount int                `json:"cartItemCount"`
}

type CartCountResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type CartMutationResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CartItemCount int    `json:"cartItemCount"`
}

type UpdateQuantityResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ItemTotalPrice string `json:"itemTotalPrice"`
	CartTotalPrice string `json:"cartTotalPrice"`
	CartItemCount  int    `json:"cartItemCount"`
}

func newCartResponse(cart *models.Cart) CartResponse {
	resp := CartResponse{
		Success:   true,
		CartID:    cart.ID,
		Lines:     make([]CartLineResponse, 0, len(cart.Lines)),
		Total:     cart.Total().StringFixed(2),
		ItemCount: cart.ItemCount(),
	}
	for _, line := range cart.Lines {
		resp.Lines = append(resp.Lines, CartLineResponse{
			ID:        line.ID,
			BookID:    line.BookID,
			BookTitle: line.BookTitle,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
			AddedAt:   line.AddedAt,
		})
	}
	return resp
}

// GetCartHandler возвращает корзину текущего пользователя
func GetCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCartHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		cart, err := cartService.GetCart(r.Context(), actor)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, newCartResponse(cart))
	}
}

func CartCountHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CartCountHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		count, err := cartService.GetItemCount(r.Context(), actor)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, CartCountResponse{Success: true, Count: count})
	}
}

// AddToCartHandler добавляет книгу в корзину или увеличивает количество в существующей строке
func AddToCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddToCartHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}

		var req AddToCartRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}

		count, err := cartService.AddItem(r.Context(), actor, req.BookID, quantity)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, CartMutationResponse{
			Success:       true,
			Message:       "book added to cart",
			CartItemCount: count,
		})
	}
}

func UpdateCartQuantityHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateCartQuantityHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}
		lineID, ok := idParam(w, r, logger, "lineID")
		if !ok {
			return
		}

		var req UpdateQuantityRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		res, err := cartService.UpdateQuantity(r.Context(), actor, lineID, *req.Quantity)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		msg := "quantity updated"
		if res.Removed {
			msg = "item removed from cart"
		}
		writeJSON(w, logger, http.StatusOK, UpdateQuantityResponse{
			Success:        true,
			Message:        msg,
			ItemTotalPrice: res.LineSubtotal.StringFixed(2),
			CartTotalPrice: res.CartTotal.StringFixed(2),
			CartItemCount:  res.ItemCount,
		})
	}
}

func RemoveFromCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RemoveFromCartHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFromRequest(w, r, logger)
		if !ok {
			return
		}
		lineID, ok := idParam(w, r, logger, "lineID")
		if !ok {
			return
		}

		count, err := cartService.RemoveItem(r.Context(), actor, lineID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, CartMutationResponse{
			Success:       true,
			Message:       "item removed from cart",
			CartItemCount: count,
		})
	}
}
