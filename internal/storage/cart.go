package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartLineNotFound = errors.New("cart line not found")
)

// CartStorage описывает методы для работы с корзинами и их строками.
type CartStorage interface {
	// GetCartByUserID возвращает корзину пользователя без строк.
	GetCartByUserID(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error)
	CreateCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error)
	// TouchCart обновляет дату последнего изменения корзины.
	TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error
	DeleteCart(ctx context.Context, tx *sql.Tx, cartID int64) error

	// ListLines возвращает строки корзины вместе с текущими данными книги.
	ListLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]models.CartLine, error)
	GetLineByBook(ctx context.Context, tx *sql.Tx, cartID, bookID int64) (*models.CartLine, error)
	// GetLineForUser ищет строку только в корзине указанного пользователя.
	GetLineForUser(ctx context.Context, tx *sql.Tx, lineID, userID int64) (*models.CartLine, error)
	CreateLine(ctx context.Context, tx *sql.Tx, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (int64, error)
	UpdateLine(ctx context.Context, tx *sql.Tx, lineID int64, quantity int, unitPrice decimal.Decimal) error
	// IncrementLine атомарно прибавляет количество, пока сумма не превышает остаток книги.
	// ErrConflict, если параллельный запрос уже изменил строку и остатка не хватает.
	IncrementLine(ctx context.Context, tx *sql.Tx, lineID int64, delta int, unitPrice decimal.Decimal) error
	DeleteLine(ctx context.Context, tx *sql.Tx, lineID int64) error

	// CountItems сумма количеств по корзине пользователя, 0 если корзины нет.
	CountItems(ctx context.Context, userID int64) (int, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт новый репозиторий корзин.
func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

const cartLineSelect = `
	SELECT l.id, l.cart_id, l.book_id, l.quantity, l.unit_price, l.added_at, b.title, b.price, b.stock, b.version
	FROM cart_lines l
	JOIN books b ON l.book_id = b.id`

func (r *cartRepository) GetCartByUserID(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	cart := &models.Cart{}
	query := "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1"
	row := conn(r.db, tx).QueryRowContext(ctx, query, userID)
	if err := row.Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, mapError(err)
	}
	return cart, nil
}

func (r *cartRepository) CreateCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	cart := &models.Cart{}
	query := `INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, NOW(), NOW())
	          RETURNING id, user_id, created_at, updated_at`
	row := conn(r.db, tx).QueryRowContext(ctx, query, userID)
	if err := row.Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", mapError(err))
	}
	return cart, nil
}

func (r *cartRepository) TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	res, err := conn(r.db, tx).ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

// DeleteCart удаляет строки корзины и саму корзину
func (r *cartRepository) DeleteCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	q := conn(r.db, tx)
	if _, err := q.ExecContext(ctx, "DELETE FROM cart_lines WHERE cart_id = $1", cartID); err != nil {
		return fmt.Errorf("failed to delete cart lines: %w", mapError(err))
	}
	res, err := q.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *cartRepository) ListLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]models.CartLine, error) {
	query := cartLineSelect + `
	WHERE l.cart_id = $1
	ORDER BY l.id`
	rows, err := conn(r.db, tx).QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", mapError(err))
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *cartRepository) GetLineByBook(ctx context.Context, tx *sql.Tx, cartID, bookID int64) (*models.CartLine, error) {
	query := cartLineSelect + `
	WHERE l.cart_id = $1 AND l.book_id = $2`
	line, err := scanCartLine(conn(r.db, tx).QueryRowContext(ctx, query, cartID, bookID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartLineNotFound
		}
		return nil, mapError(err)
	}
	return line, nil
}

func (r *cartRepository) GetLineForUser(ctx context.Context, tx *sql.Tx, lineID, userID int64) (*models.CartLine, error) {
	query := cartLineSelect + `
	JOIN carts c ON l.cart_id = c.id
	WHERE l.id = $1 AND c.user_id = $2`
	line, err := scanCartLine(conn(r.db, tx).QueryRowContext(ctx, query, lineID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartLineNotFound
		}
		return nil, mapError(err)
	}
	return line, nil
}

func (r *cartRepository) CreateLine(ctx context.Context, tx *sql.Tx, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (int64, error) {
	var id int64
	query := `INSERT INTO cart_lines (cart_id, book_id, quantity, unit_price, added_at)
	          VALUES ($1, $2, $3, $4, NOW()) RETURNING id`
	if err := conn(r.db, tx).QueryRowContext(ctx, query, cartID, bookID, quantity, unitPrice).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create cart line: %w", mapError(err))
	}
	return id, nil
}

func (r *cartRepository) UpdateLine(ctx context.Context, tx *sql.Tx, lineID int64, quantity int, unitPrice decimal.Decimal) error {
	query := "UPDATE cart_lines SET quantity = $1, unit_price = $2 WHERE id = $3"
	res, err := conn(r.db, tx).ExecContext(ctx, query, quantity, unitPrice, lineID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

func (r *cartRepository) IncrementLine(ctx context.Context, tx *sql.Tx, lineID int64, delta int, unitPrice decimal.Decimal) error {
	query := `UPDATE cart_lines l SET quantity = l.quantity + $1, unit_price = $2
	          FROM books b
	          WHERE l.id = $3 AND b.id = l.book_id AND l.quantity + $1 <= b.stock`
	res, err := conn(r.db, tx).ExecContext(ctx, query, delta, unitPrice, lineID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *cartRepository) DeleteLine(ctx context.Context, tx *sql.Tx, lineID int64) error {
	res, err := conn(r.db, tx).ExecContext(ctx, "DELETE FROM cart_lines WHERE id = $1", lineID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

func (r *cartRepository) CountItems(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM cart_lines l
		JOIN carts c ON l.cart_id = c.id
		WHERE c.user_id = $1`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartLine(row rowScanner) (*models.CartLine, error) {
	line := &models.CartLine{}
	err := row.Scan(
		&line.ID, &line.CartID, &line.BookID, &line.Quantity, &line.UnitPrice, &line.AddedAt,
		&line.BookTitle, &line.BookPrice, &line.BookStock, &line.BookVersion,
	)
	if err != nil {
		return nil, err
	}
	return line, nil
}
