package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/bookstore/internal/domain/models"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrAddressNotFound = errors.New("delivery address not found")
)

// OrderStorage описывает методы для работы с заказами, их строками и счетами.
type OrderStorage interface {
	// CreateOrder вставляет заказ в таблицу orders и возвращает его идентификатор.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error)
	CreateOrderLine(ctx context.Context, tx *sql.Tx, orderID int64, line models.OrderLine) (int64, error)
	CreateInvoice(ctx context.Context, tx *sql.Tx, orderID int64, issuedAt time.Time) (*models.Invoice, error)

	// GetOrderByID возвращает заказ без строк, вместе с токеном версии.
	GetOrderByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// GetOrderLines возвращает строки заказа с названием книги и продавцом (JOIN с books).
	GetOrderLines(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderLine, error)
	GetInvoiceByOrderID(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Invoice, error)

	// UpdateOrderStatus меняет статус, если версия заказа не изменилась.
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, version int) error
	DeleteOrder(ctx context.Context, tx *sql.Tx, id int64) error

	ListOrders(ctx context.Context) ([]*models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error)
	// ListOrdersBySeller заказы, в которых есть хотя бы одна книга продавца.
	ListOrdersBySeller(ctx context.Context, sellerID int64) ([]*models.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderLineSelect = `
	SELECT ol.id, ol.order_id, ol.book_id, b.title, b.seller_id, ol.quantity, ol.unit_price
	FROM order_lines ol
	JOIN books b ON ol.book_id = b.id`

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	var id int64
	query := `INSERT INTO orders (buyer_id, address_id, ordered_at, status, total, version)
	          VALUES ($1, $2, $3, $4, $5, 0) RETURNING id`
	err := conn(r.db, tx).QueryRowContext(ctx, query,
		order.BuyerID, order.AddressID, order.OrderedAt, order.Status, order.Total,
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err, "orders_address_id_fkey") {
			return 0, ErrAddressNotFound
		}
		return 0, fmt.Errorf("failed to create order: %w", mapError(err))
	}
	return id, nil
}

func (r *orderRepository) CreateOrderLine(ctx context.Context, tx *sql.Tx, orderID int64, line models.OrderLine) (int64, error) {
	var id int64
	query := `INSERT INTO order_lines (order_id, book_id, quantity, unit_price)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	if err := conn(r.db, tx).QueryRowContext(ctx, query, orderID, line.BookID, line.Quantity, line.UnitPrice).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create order line: %w", mapError(err))
	}
	return id, nil
}

func (r *orderRepository) CreateInvoice(ctx context.Context, tx *sql.Tx, orderID int64, issuedAt time.Time) (*models.Invoice, error) {
	invoice := &models.Invoice{OrderID: orderID, IssuedAt: issuedAt}
	query := "INSERT INTO invoices (order_id, issued_at) VALUES ($1, $2) RETURNING id"
	if err := conn(r.db, tx).QueryRowContext(ctx, query, orderID, issuedAt).Scan(&invoice.ID); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", mapError(err))
	}
	return invoice, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}
	query := "SELECT id, buyer_id, address_id, ordered_at, status, total, version FROM orders WHERE id = $1"
	row := conn(r.db, tx).QueryRowContext(ctx, query, id)
	if err := row.Scan(&order.ID, &order.BuyerID, &order.AddressID, &order.OrderedAt, &order.Status, &order.Total, &order.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, mapError(err)
	}
	return order, nil
}

func (r *orderRepository) GetOrderLines(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderLine, error) {
	query := orderLineSelect + `
	WHERE ol.order_id = $1
	ORDER BY ol.id`
	rows, err := conn(r.db, tx).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", mapError(err))
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.BookID, &line.BookTitle, &line.SellerID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *orderRepository) GetInvoiceByOrderID(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	query := "SELECT id, order_id, issued_at FROM invoices WHERE order_id = $1"
	if err := conn(r.db, tx).QueryRowContext(ctx, query, orderID).Scan(&invoice.ID, &invoice.OrderID, &invoice.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, version int) error {
	query := "UPDATE orders SET status = $1, version = version + 1 WHERE id = $2 AND version = $3"
	res, err := conn(r.db, tx).ExecContext(ctx, query, status, id, version)
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

// DeleteOrder удаляет строки, счёт и сам заказ. Остатки не возвращаются
func (r *orderRepository) DeleteOrder(ctx context.Context, tx *sql.Tx, id int64) error {
	q := conn(r.db, tx)
	if _, err := q.ExecContext(ctx, "DELETE FROM order_lines WHERE order_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete order lines: %w", mapError(err))
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM invoices WHERE order_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", mapError(err))
	}
	res, err := q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return r.listOrders(ctx, `
		SELECT id, buyer_id, address_id, ordered_at, status, total, version
		FROM orders
		ORDER BY ordered_at DESC`)
}

func (r *orderRepository) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	return r.listOrders(ctx, `
		SELECT id, buyer_id, address_id, ordered_at, status, total, version
		FROM orders
		WHERE buyer_id = $1
		ORDER BY ordered_at DESC`, buyerID)
}

func (r *orderRepository) ListOrdersBySeller(ctx context.Context, sellerID int64) ([]*models.Order, error) {
	return r.listOrders(ctx, `
		SELECT id, buyer_id, address_id, ordered_at, status, total, version
		FROM orders
		WHERE id IN (
			SELECT ol.order_id FROM order_lines ol
			JOIN books b ON ol.book_id = b.id
			WHERE b.seller_id = $1
		)
		ORDER BY ordered_at DESC`, sellerID)
}

// listOrders выбирает заказы и подгружает их строки одним запросом через ANY($1)
func (r *orderRepository) listOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	byID := make(map[int64]*models.Order)
	var ids []int64
	for rows.Next() {
		order := &models.Order{Lines: []models.OrderLine{}}
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.AddressID, &order.OrderedAt, &order.Status, &order.Total, &order.Version); err != nil {
			return nil, err
		}
		orders = append(orders, order)
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, orderLineSelect+`
	WHERE ol.order_id = ANY($1)
	ORDER BY ol.id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line models.OrderLine
		if err := lineRows.Scan(&line.ID, &line.OrderID, &line.BookID, &line.BookTitle, &line.SellerID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		if order, ok := byID[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}
