package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/events"
	"github.com/linemk/bookstore/internal/storage"
)

type OrderService interface {
	UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, status models.OrderStatus) error
	ListOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error)
	GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	IncomingOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error)
	DeleteOrder(ctx context.Context, actor models.Actor, orderID int64) error
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	bookRepo  storage.BookStorage
	orderRepo storage.OrderStorage
	publisher EventPublisher
	metrics   OrderMetrics
}

// NewOrderService создаёт сервис заказов. publisher и metrics могут быть nil.
func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	bookRepo storage.BookStorage,
	orderRepo storage.OrderStorage,
	publisher EventPublisher,
	metrics OrderMetrics,
) OrderService {
	return &orderService{
		log:       log,
		db:        db,
		bookRepo:  bookRepo,
		orderRepo: orderRepo,
		publisher: publisher,
		metrics:   metrics,
	}
}

// UpdateStatus меняет статус заказа. Переход в "İptal Edildi" из любого другого статуса
// возвращает книги на склад. Других ограничений на переходы нет.
func (s *orderService) UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, status models.OrderStatus) error {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", actor.UserID),
		slog.Int64("orderID", orderID),
		slog.String("status", string(status)),
	)
	logger.Info("updating order status")

	if !status.Valid() {
		logger.Warn("unknown order status")
		return fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	order, err := s.loadOrder(ctx, tx, orderID)
	if err != nil {
		rollback(tx, logger)
		logger.Warn("failed to load order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to load order: %w", op, classify(err))
	}

	if !canManage(actor, order) {
		rollback(tx, logger)
		logger.Warn("actor is not allowed to manage order", slog.String("role", string(actor.Role)))
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	// Статус пишется первым и по версии: из двух параллельных отмен до возврата
	// остатков дойдёт только одна
	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, status, order.Version); err != nil {
		rollback(tx, logger)
		logger.Warn("failed to update order status", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update order status: %w", op, classify(err))
	}

	previous := order.Status
	restock := previous != models.OrderStatusCancelled && status == models.OrderStatusCancelled
	if restock {
		for _, line := range order.Lines {
			if err := s.bookRepo.IncrementStock(ctx, tx, line.BookID, line.Quantity); err != nil {
				rollback(tx, logger)
				logger.Error("failed to restock book", slog.Int64("bookID", line.BookID), slog.Any("error", err))
				return fmt.Errorf("%s: failed to restock book: %w", op, classify(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	if s.publisher != nil {
		event := events.NewOrderStatusChanged(order.ID, actor.UserID, previous, status, restock)
		if err := s.publisher.Publish(ctx, strconv.FormatInt(order.ID, 10), event); err != nil {
			logger.Error("failed to publish status changed event", slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.StatusChanged(ctx, status)
	}

	logger.Info("order status updated", slog.String("from", string(previous)), slog.Bool("restocked", restock))
	return nil
}

// ListOrders возвращает все заказы для администратора, для остальных только собственные покупки
func (s *orderService) ListOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID))

	var (
		orders []*models.Order
		err    error
	)
	if actor.IsAdmin() {
		orders, err = s.orderRepo.ListOrders(ctx)
	} else {
		orders, err = s.orderRepo.ListOrdersByBuyer(ctx, actor.UserID)
	}
	if err != nil {
		logger.Error("failed to list orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, classify(err))
	}
	return orders, nil
}

// GetOrder возвращает заказ со строками и счётом
func (s *orderService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID), slog.Int64("orderID", orderID))

	order, err := s.loadOrder(ctx, nil, orderID)
	if err != nil {
		logger.Warn("failed to load order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load order: %w", op, classify(err))
	}

	if !canView(actor, order) {
		logger.Warn("actor is not allowed to view order", slog.String("role", string(actor.Role)))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	invoice, err := s.orderRepo.GetInvoiceByOrderID(ctx, nil, order.ID)
	switch {
	case errors.Is(err, storage.ErrInvoiceNotFound):
		logger.Warn("order has no invoice")
	case err != nil:
		logger.Error("failed to get invoice", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get invoice: %w", op, classify(err))
	default:
		order.Invoice = invoice
	}
	return order, nil
}

// IncomingOrders заказы, в которых есть книги продавца
func (s *orderService) IncomingOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	const op = "service.OrderService.IncomingOrders"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID))

	if !actor.IsSeller() {
		logger.Warn("only sellers have incoming orders", slog.String("role", string(actor.Role)))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	orders, err := s.orderRepo.ListOrdersBySeller(ctx, actor.UserID)
	if err != nil {
		logger.Error("failed to list incoming orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list incoming orders: %w", op, classify(err))
	}
	return orders, nil
}

// DeleteOrder удаляет заказ вместе со строками и счётом. Доступно только администратору.
func (s *orderService) DeleteOrder(ctx context.Context, actor models.Actor, orderID int64) error {
	const op = "service.OrderService.DeleteOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID), slog.Int64("orderID", orderID))
	logger.Info("deleting order")

	if !actor.IsAdmin() {
		logger.Warn("only admin can delete orders", slog.String("role", string(actor.Role)))
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	if err := s.orderRepo.DeleteOrder(ctx, tx, orderID); err != nil {
		rollback(tx, logger)
		logger.Warn("failed to delete order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete order: %w", op, classify(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	logger.Info("order deleted")
	return nil
}

func (s *orderService) loadOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.orderRepo.GetOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []models.OrderLine{}
	}
	order.Lines = lines
	return order, nil
}

// canManage: администратор любой заказ, продавец только заказ со своими книгами
func canManage(actor models.Actor, order *models.Order) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.IsSeller():
		return order.HasSeller(actor.UserID)
	default:
		return false
	}
}

func canView(actor models.Actor, order *models.Order) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSeller:
		return order.BuyerID == actor.UserID || order.HasSeller(actor.UserID)
	case models.RoleCustomer:
		return order.BuyerID == actor.UserID
	default:
		return false
	}
}
