package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/linemk/bookstore/internal/domain/models"
)

var ErrBookNotFound = errors.New("book not found")

// BookStorage описывает методы для работы с каталогом книг.
// Остаток меняется только при оформлении заказа (списание) и отмене (возврат).
type BookStorage interface {
	// GetBookByID получает книгу вместе с текущим токеном версии.
	GetBookByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Book, error)
	// DecrementStock списывает остаток, если версия не изменилась и остатка хватает.
	DecrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int, version int) error
	// IncrementStock возвращает остаток на склад.
	IncrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error
}

type bookRepository struct {
	db *sql.DB
}

// NewBookRepository создаёт новый репозиторий книг.
func NewBookRepository(db *sql.DB) BookStorage {
	return &bookRepository{db: db}
}

func (r *bookRepository) GetBookByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Book, error) {
	book := &models.Book{}
	query := "SELECT id, title, price, stock, approval_status, seller_id, version FROM books WHERE id = $1"
	row := conn(r.db, tx).QueryRowContext(ctx, query, id)
	if err := row.Scan(&book.ID, &book.Title, &book.Price, &book.Stock, &book.ApprovalStatus, &book.SellerID, &book.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, mapError(err)
	}
	return book, nil
}

// DecrementStock: условное обновление: 0 затронутых строк означает, что книгу
// успели изменить или остатка уже не хватает.
func (r *bookRepository) DecrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int, version int) error {
	query := "UPDATE books SET stock = stock - $1, version = version + 1 WHERE id = $2 AND version = $3 AND stock >= $1"
	res, err := conn(r.db, tx).ExecContext(ctx, query, quantity, id, version)
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

func (r *bookRepository) IncrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	query := "UPDATE books SET stock = stock + $1, version = version + 1 WHERE id = $2"
	res, err := conn(r.db, tx).ExecContext(ctx, query, quantity, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookNotFound
	}
	return nil
}
