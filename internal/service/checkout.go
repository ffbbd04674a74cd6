package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/events"
	"github.com/linemk/bookstore/internal/storage"
	"github.com/shopspring/decimal"
)

// EventPublisher отправляет событие после фиксации транзакции. Ошибка публикации
// только логируется: заказ уже сохранён.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// OrderMetrics счётчики заказов, реализуются telemetry.ShopMetrics
type OrderMetrics interface {
	OrderPlaced(ctx context.Context, total decimal.Decimal)
	StatusChanged(ctx context.Context, status models.OrderStatus)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, actor models.Actor, addressID int64) (int64, error)
}

type checkoutService struct {
	log       *slog.Logger
	db        *sql.DB
	cartRepo  storage.CartStorage
	bookRepo  storage.BookStorage
	orderRepo storage.OrderStorage
	publisher EventPublisher
	metrics   OrderMetrics
	now       func() time.Time
}

// NewCheckoutService создаёт сервис оформления заказа. publisher и metrics могут быть nil.
func NewCheckoutService(
	log *slog.Logger,
	db *sql.DB,
	cartRepo storage.CartStorage,
	bookRepo storage.BookStorage,
	orderRepo storage.OrderStorage,
	publisher EventPublisher,
	metrics OrderMetrics,
) CheckoutService {
	return &checkoutService{
		log:       log,
		db:        db,
		cartRepo:  cartRepo,
		bookRepo:  bookRepo,
		orderRepo: orderRepo,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

// PlaceOrder превращает корзину в заказ со счётом, списывает остатки и удаляет корзину.
// Всё выполняется в одной транзакции, любая ошибка откатывает её целиком.
func (s *checkoutService) PlaceOrder(ctx context.Context, actor models.Actor, addressID int64) (int64, error) {
	const op = "service.CheckoutService.PlaceOrder"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", actor.UserID),
		slog.Int64("addressID", addressID),
	)
	logger.Info("starting checkout transaction")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	cart, err := s.cartRepo.GetCartByUserID(ctx, tx, actor.UserID)
	if err != nil {
		rollback(tx, logger)
		if errors.Is(err, storage.ErrCartNotFound) {
			logger.Warn("cart not found")
			return 0, fmt.Errorf("%s: %w", op, ErrEmptyCart)
		}
		logger.Error("failed to get cart", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to get cart: %w", op, classify(err))
	}

	lines, err := s.cartRepo.ListLines(ctx, tx, cart.ID)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to list cart lines", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to list cart lines: %w", op, classify(err))
	}
	if len(lines) == 0 {
		rollback(tx, logger)
		logger.Warn("cart is empty")
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}

	for _, line := range lines {
		if line.Quantity > line.BookStock {
			rollback(tx, logger)
			logger.Warn("insufficient stock", slog.Int64("bookID", line.BookID), slog.Int("stock", line.BookStock))
			return 0, fmt.Errorf("%s: %w", op, &InsufficientStockError{
				BookID:    line.BookID,
				Title:     line.BookTitle,
				Available: line.BookStock,
				Requested: line.Quantity,
			})
		}
	}

	// Списание условное по версии книги: параллельный заказ той же книги получит конфликт
	for _, line := range lines {
		if err := s.bookRepo.DecrementStock(ctx, tx, line.BookID, line.Quantity, line.BookVersion); err != nil {
			rollback(tx, logger)
			logger.Warn("failed to decrement stock", slog.Int64("bookID", line.BookID), slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to decrement stock: %w", op, classify(err))
		}
	}

	if addressID == 0 {
		rollback(tx, logger)
		logger.Warn("delivery address is missing")
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidAddress)
	}

	now := s.now()
	order := &models.Order{
		BuyerID:   actor.UserID,
		AddressID: addressID,
		OrderedAt: now,
		Status:    models.OrderStatusPreparing,
		Total:     decimal.Zero,
		Lines:     make([]models.OrderLine, 0, len(lines)),
	}
	for _, line := range lines {
		order.Lines = append(order.Lines, models.OrderLine{
			BookID:    line.BookID,
			BookTitle: line.BookTitle,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
		order.Total = order.Total.Add(line.Subtotal())
	}

	order.ID, err = s.orderRepo.CreateOrder(ctx, tx, order)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to create order", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to create order: %w", op, classify(err))
	}

	if _, err := s.orderRepo.CreateInvoice(ctx, tx, order.ID, now); err != nil {
		rollback(tx, logger)
		logger.Error("failed to create invoice", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to create invoice: %w", op, classify(err))
	}

	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
		id, err := s.orderRepo.CreateOrderLine(ctx, tx, order.ID, order.Lines[i])
		if err != nil {
			rollback(tx, logger)
			logger.Error("failed to create order line", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to create order line: %w", op, classify(err))
		}
		order.Lines[i].ID = id
	}

	if err := s.cartRepo.DeleteCart(ctx, tx, cart.ID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to delete cart", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to delete cart: %w", op, classify(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, strconv.FormatInt(order.ID, 10), events.NewOrderPlaced(order)); err != nil {
			logger.Error("failed to publish order placed event", slog.Any("error", err), slog.Int64("orderID", order.ID))
		}
	}
	if s.metrics != nil {
		s.metrics.OrderPlaced(ctx, order.Total)
	}

	logger.Info("order placed successfully", slog.Int64("orderID", order.ID), slog.String("total", order.Total.StringFixed(2)))
	return order.ID, nil
}
