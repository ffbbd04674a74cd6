package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/storage"
	"github.com/shopspring/decimal"
)

// CartUpdate результат изменения количества в строке корзины
type CartUpdate struct {
	LineSubtotal decimal.Decimal
	CartTotal    decimal.Decimal
	ItemCount    int
	Removed      bool
}

type CartService interface {
	AddItem(ctx context.Context, actor models.Actor, bookID int64, quantity int) (int, error)
	UpdateQuantity(ctx context.Context, actor models.Actor, lineID int64, quantity int) (*CartUpdate, error)
	RemoveItem(ctx context.Context, actor models.Actor, lineID int64) (int, error)
	GetItemCount(ctx context.Context, actor models.Actor) (int, error)
	GetCart(ctx context.Context, actor models.Actor) (*models.Cart, error)
}

type cartService struct {
	log      *slog.Logger
	db       *sql.DB
	cartRepo storage.CartStorage
	bookRepo storage.BookStorage
}

func NewCartService(log *slog.Logger, db *sql.DB, cartRepo storage.CartStorage, bookRepo storage.BookStorage) CartService {
	return &cartService{
		log:      log,
		db:       db,
		cartRepo: cartRepo,
		bookRepo: bookRepo,
	}
}

// AddItem добавляет книгу в корзину пользователя, создавая корзину при первом добавлении.
// Остаток только проверяется, но не резервируется.
func (s *cartService) AddItem(ctx context.Context, actor models.Actor, bookID int64, quantity int) (int, error) {
	const op = "service.CartService.AddItem"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", actor.UserID),
		slog.Int64("bookID", bookID),
		slog.Int("quantity", quantity),
	)
	logger.Info("adding book to cart")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	book, err := s.bookRepo.GetBookByID(ctx, tx, bookID)
	if err != nil {
		rollback(tx, logger)
		logger.Warn("failed to get book", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to get book: %w", op, classify(err))
	}

	if book.SellerID == actor.UserID {
		rollback(tx, logger)
		logger.Warn("seller tried to buy own book")
		return 0, fmt.Errorf("%s: %w", op, ErrOwnBook)
	}

	if quantity <= 0 {
		rollback(tx, logger)
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	// Корзины может ещё не быть, тогда и строки нет
	var existing *models.CartLine
	cart, err := s.cartRepo.GetCartByUserID(ctx, tx, actor.UserID)
	switch {
	case errors.Is(err, storage.ErrCartNotFound):
		cart = nil
	case err != nil:
		rollback(tx, logger)
		logger.Error("failed to get cart", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to get cart: %w", op, classify(err))
	default:
		existing, err = s.cartRepo.GetLineByBook(ctx, tx, cart.ID, book.ID)
		if err != nil && !errors.Is(err, storage.ErrCartLineNotFound) {
			rollback(tx, logger)
			logger.Error("failed to get cart line", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to get cart line: %w", op, classify(err))
		}
	}

	inCart := 0
	if existing != nil {
		inCart = existing.Quantity
	}
	if inCart+quantity > book.Stock {
		rollback(tx, logger)
		logger.Warn("insufficient stock", slog.Int("stock", book.Stock), slog.Int("inCart", inCart))
		return 0, fmt.Errorf("%s: %w", op, &InsufficientStockError{
			BookID:    book.ID,
			Title:     book.Title,
			Available: book.Stock,
			Requested: inCart + quantity,
		})
	}

	if cart == nil {
		cart, err = s.cartRepo.CreateCart(ctx, tx, actor.UserID)
		if err != nil {
			rollback(tx, logger)
			logger.Error("failed to create cart", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to create cart: %w", op, classify(err))
		}
	}

	// Цена строки всегда сбрасывается на текущую цену книги
	if existing == nil {
		if _, err := s.cartRepo.CreateLine(ctx, tx, cart.ID, book.ID, quantity, book.Price); err != nil {
			rollback(tx, logger)
			logger.Error("failed to create cart line", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to create cart line: %w", op, classify(err))
		}
	} else {
		// Прибавление в SQL: параллельное добавление той же книги не теряется
		if err := s.cartRepo.IncrementLine(ctx, tx, existing.ID, quantity, book.Price); err != nil {
			rollback(tx, logger)
			logger.Error("failed to update cart line", slog.Any("error", err))
			return 0, fmt.Errorf("%s: failed to update cart line: %w", op, classify(err))
		}
	}

	if err := s.cartRepo.TouchCart(ctx, tx, cart.ID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to touch cart", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to touch cart: %w", op, classify(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	count, err := s.cartRepo.CountItems(ctx, actor.UserID)
	if err != nil {
		logger.Error("failed to count cart items", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to count cart items: %w", op, classify(err))
	}

	logger.Info("book added to cart", slog.Int("cartItemCount", count))
	return count, nil
}

// UpdateQuantity выставляет новое количество. Количество <= 0 удаляет строку.
func (s *cartService) UpdateQuantity(ctx context.Context, actor models.Actor, lineID int64, quantity int) (*CartUpdate, error) {
	const op = "service.CartService.UpdateQuantity"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", actor.UserID),
		slog.Int64("lineID", lineID),
		slog.Int("quantity", quantity),
	)
	logger.Info("updating cart line quantity")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	line, err := s.cartRepo.GetLineForUser(ctx, tx, lineID, actor.UserID)
	if err != nil {
		rollback(tx, logger)
		logger.Warn("failed to get cart line", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get cart line: %w", op, classify(err))
	}

	if quantity > line.BookStock {
		rollback(tx, logger)
		logger.Warn("insufficient stock", slog.Int("stock", line.BookStock))
		return nil, fmt.Errorf("%s: %w", op, &InsufficientStockError{
			BookID:    line.BookID,
			Title:     line.BookTitle,
			Available: line.BookStock,
			Requested: quantity,
		})
	}

	result := &CartUpdate{LineSubtotal: decimal.Zero}
	if quantity <= 0 {
		if err := s.cartRepo.DeleteLine(ctx, tx, line.ID); err != nil {
			rollback(tx, logger)
			logger.Error("failed to delete cart line", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to delete cart line: %w", op, classify(err))
		}
		result.Removed = true
	} else {
		if err := s.cartRepo.UpdateLine(ctx, tx, line.ID, quantity, line.BookPrice); err != nil {
			rollback(tx, logger)
			logger.Error("failed to update cart line", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to update cart line: %w", op, classify(err))
		}
		result.LineSubtotal = line.BookPrice.Mul(decimal.NewFromInt(int64(quantity)))
	}

	if err := s.cartRepo.TouchCart(ctx, tx, line.CartID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to touch cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to touch cart: %w", op, classify(err))
	}

	lines, err := s.cartRepo.ListLines(ctx, tx, line.CartID)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to list cart lines", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list cart lines: %w", op, classify(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	cart := &models.Cart{ID: line.CartID, UserID: actor.UserID, Lines: lines}
	result.CartTotal = cart.Total()
	result.ItemCount = cart.ItemCount()

	logger.Info("cart line updated", slog.Bool("removed", result.Removed), slog.String("cartTotal", result.CartTotal.StringFixed(2)))
	return result, nil
}

// RemoveItem удаляет строку из корзины. Остаток книги не меняется.
func (s *cartService) RemoveItem(ctx context.Context, actor models.Actor, lineID int64) (int, error) {
	const op = "service.CartService.RemoveItem"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID), slog.Int64("lineID", lineID))
	logger.Info("removing cart line")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, errors.Join(ErrPersistence, err))
	}

	line, err := s.cartRepo.GetLineForUser(ctx, tx, lineID, actor.UserID)
	if err != nil {
		rollback(tx, logger)
		logger.Warn("failed to get cart line", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to get cart line: %w", op, classify(err))
	}

	if err := s.cartRepo.DeleteLine(ctx, tx, line.ID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to delete cart line", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to delete cart line: %w", op, classify(err))
	}

	if err := s.cartRepo.TouchCart(ctx, tx, line.CartID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to touch cart", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to touch cart: %w", op, classify(err))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to commit transaction: %w", op, classify(err))
	}

	return s.GetItemCount(ctx, actor)
}

func (s *cartService) GetItemCount(ctx context.Context, actor models.Actor) (int, error) {
	const op = "service.CartService.GetItemCount"

	count, err := s.cartRepo.CountItems(ctx, actor.UserID)
	if err != nil {
		s.log.Error("failed to count cart items", slog.String("op", op), slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to count cart items: %w", op, classify(err))
	}
	return count, nil
}

// GetCart возвращает корзину со строками. Если корзины нет, возвращается пустая корзина без id.
func (s *cartService) GetCart(ctx context.Context, actor models.Actor) (*models.Cart, error) {
	const op = "service.CartService.GetCart"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID))

	cart, err := s.cartRepo.GetCartByUserID(ctx, nil, actor.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrCartNotFound) {
			return &models.Cart{UserID: actor.UserID, Lines: []models.CartLine{}}, nil
		}
		logger.Error("failed to get cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get cart: %w", op, classify(err))
	}

	lines, err := s.cartRepo.ListLines(ctx, nil, cart.ID)
	if err != nil {
		logger.Error("failed to list cart lines", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list cart lines: %w", op, classify(err))
	}
	if lines == nil {
		lines = []models.CartLine{}
	}
	cart.Lines = lines
	return cart, nil
}
