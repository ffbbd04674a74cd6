package service

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/bookstore/internal/storage"
)

// Виды ошибок, которые видит транспортный слой
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not authorized")
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("resource was modified concurrently, please try again")
	ErrPersistence         = errors.New("persistence failure")
)

var (
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInvalidAddress     = fmt.Errorf("%w: delivery address is required", ErrValidation)
	ErrInsufficientStock  = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown order status", ErrValidation)
	ErrOwnBook            = fmt.Errorf("%w: sellers cannot add their own books to the cart", ErrUnauthorized)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
)

// InsufficientStockError сообщает, какой книги не хватает и сколько её осталось.
type InsufficientStockError struct {
	BookID    int64
	Title     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d", e.Title, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// classify переводит ошибки хранилища в виды ошибок сервиса, сохраняя исходную причину
func classify(err error) error {
	switch {
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case errors.Is(err, storage.ErrAddressNotFound):
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	case errors.Is(err, storage.ErrBookNotFound),
		errors.Is(err, storage.ErrCartNotFound),
		errors.Is(err, storage.ErrCartLineNotFound),
		errors.Is(err, storage.ErrOrderNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
