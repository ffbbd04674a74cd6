package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConflict возвращается, когда строка была изменена параллельной транзакцией
var ErrConflict = errors.New("resource was modified concurrently, please try again")

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
)

// querier общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn возвращает транзакцию, если она передана, иначе пул соединений
func conn(db *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

// mapError переводит ошибки конкурентного доступа postgres в ErrConflict.
// Нарушение уникальности здесь означает, что параллельный запрос успел вставить
// ту же корзину или строку корзины.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqUniqueViolation:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func isForeignKeyViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == constraint
}
