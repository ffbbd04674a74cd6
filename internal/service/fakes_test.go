package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/storage"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeStore общее состояние для фейковых репозиториев, повторяет семантику SQL-запросов
type fakeStore struct {
	nextID     int64
	books      map[int64]*models.Book
	users      map[string]*models.User
	carts      map[int64]*models.Cart
	cartLines  map[int64]*models.CartLine
	orders     map[int64]*models.Order
	orderLines map[int64][]models.OrderLine
	invoices   map[int64]*models.Invoice

	// beforeStatusUpdate вызывается перед проверкой версии заказа
	beforeStatusUpdate func(order *models.Order)
	// beforeLineIncrement вызывается перед атомарным прибавлением к строке корзины
	beforeLineIncrement func(line *models.CartLine)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:     100,
		books:      make(map[int64]*models.Book),
		users:      make(map[string]*models.User),
		carts:      make(map[int64]*models.Cart),
		cartLines:  make(map[int64]*models.CartLine),
		orders:     make(map[int64]*models.Order),
		orderLines: make(map[int64][]models.OrderLine),
		invoices:   make(map[int64]*models.Invoice),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addBook(id int64, price string, stock int, sellerID int64) *models.Book {
	b := &models.Book{
		ID:             id,
		Title:          "book",
		Price:          money(price),
		Stock:          stock,
		ApprovalStatus: models.ApprovalApproved,
		SellerID:       sellerID,
	}
	s.books[id] = b
	return b
}

func (s *fakeStore) cartOf(userID int64) *models.Cart {
	for _, c := range s.carts {
		if c.UserID == userID {
			return c
		}
	}
	return nil
}

func (s *fakeStore) joinLine(l *models.CartLine) models.CartLine {
	out := *l
	if b, ok := s.books[l.BookID]; ok {
		out.BookTitle = b.Title
		out.BookPrice = b.Price
		out.BookStock = b.Stock
		out.BookVersion = b.Version
	}
	return out
}

type fakeBookRepo struct{ s *fakeStore }

var _ storage.BookStorage = (*fakeBookRepo)(nil)

func (f *fakeBookRepo) GetBookByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Book, error) {
	b, ok := f.s.books[id]
	if !ok {
		return nil, storage.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookRepo) DecrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int, version int) error {
	b, ok := f.s.books[id]
	if !ok || b.Version != version || b.Stock < quantity {
		return storage.ErrConflict
	}
	b.Stock -= quantity
	b.Version++
	return nil
}

func (f *fakeBookRepo) IncrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	b, ok := f.s.books[id]
	if !ok {
		return storage.ErrBookNotFound
	}
	b.Stock += quantity
	b.Version++
	return nil
}

type fakeCartRepo struct{ s *fakeStore }

var _ storage.CartStorage = (*fakeCartRepo)(nil)

func (f *fakeCartRepo) GetCartByUserID(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	c := f.s.cartOf(userID)
	if c == nil {
		return nil, storage.ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCartRepo) CreateCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	now := time.Now()
	c := &models.Cart{ID: f.s.id(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	f.s.carts[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeCartRepo) TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	c, ok := f.s.carts[cartID]
	if !ok {
		return storage.ErrCartNotFound
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeCartRepo) DeleteCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, ok := f.s.carts[cartID]; !ok {
		return storage.ErrCartNotFound
	}
	for id, l := range f.s.cartLines {
		if l.CartID == cartID {
			delete(f.s.cartLines, id)
		}
	}
	delete(f.s.carts, cartID)
	return nil
}

func (f *fakeCartRepo) ListLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	for _, l := range f.s.cartLines {
		if l.CartID == cartID {
			lines = append(lines, f.s.joinLine(l))
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (f *fakeCartRepo) GetLineByBook(ctx context.Context, tx *sql.Tx, cartID, bookID int64) (*models.CartLine, error) {
	for _, l := range f.s.cartLines {
		if l.CartID == cartID && l.BookID == bookID {
			joined := f.s.joinLine(l)
			return &joined, nil
		}
	}
	return nil, storage.ErrCartLineNotFound
}

func (f *fakeCartRepo) GetLineForUser(ctx context.Context, tx *sql.Tx, lineID, userID int64) (*models.CartLine, error) {
	l, ok := f.s.cartLines[lineID]
	if !ok {
		return nil, storage.ErrCartLineNotFound
	}
	c, ok := f.s.carts[l.CartID]
	if !ok || c.UserID != userID {
		return nil, storage.ErrCartLineNotFound
	}
	joined := f.s.joinLine(l)
	return &joined, nil
}

func (f *fakeCartRepo) CreateLine(ctx context.Context, tx *sql.Tx, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (int64, error) {
	l := &models.CartLine{ID: f.s.id(), CartID: cartID, BookID: bookID, Quantity: quantity, UnitPrice: unitPrice, AddedAt: time.Now()}
	f.s.cartLines[l.ID] = l
	return l.ID, nil
}

func (f *fakeCartRepo) UpdateLine(ctx context.Context, tx *sql.Tx, lineID int64, quantity int, unitPrice decimal.Decimal) error {
	l, ok := f.s.cartLines[lineID]
	if !ok {
		return storage.ErrCartLineNotFound
	}
	l.Quantity = quantity
	l.UnitPrice = unitPrice
	return nil
}

func (f *fakeCartRepo) IncrementLine(ctx context.Context, tx *sql.Tx, lineID int64, delta int, unitPrice decimal.Decimal) error {
	l, ok := f.s.cartLines[lineID]
	if !ok {
		return storage.ErrConflict
	}
	if f.s.beforeLineIncrement != nil {
		f.s.beforeLineIncrement(l)
	}
	b, ok := f.s.books[l.BookID]
	if !ok || l.Quantity+delta > b.Stock {
		return storage.ErrConflict
	}
	l.Quantity += delta
	l.UnitPrice = unitPrice
	return nil
}

func (f *fakeCartRepo) DeleteLine(ctx context.Context, tx *sql.Tx, lineID int64) error {
	if _, ok := f.s.cartLines[lineID]; !ok {
		return storage.ErrCartLineNotFound
	}
	delete(f.s.cartLines, lineID)
	return nil
}

func (f *fakeCartRepo) CountItems(ctx context.Context, userID int64) (int, error) {
	c := f.s.cartOf(userID)
	if c == nil {
		return 0, nil
	}
	count := 0
	for _, l := range f.s.cartLines {
		if l.CartID == c.ID {
			count += l.Quantity
		}
	}
	return count, nil
}

type fakeOrderRepo struct{ s *fakeStore }

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	o := *order
	o.ID = f.s.id()
	o.Lines = nil
	f.s.orders[o.ID] = &o
	return o.ID, nil
}

func (f *fakeOrderRepo) CreateOrderLine(ctx context.Context, tx *sql.Tx, orderID int64, line models.OrderLine) (int64, error) {
	line.ID = f.s.id()
	line.OrderID = orderID
	f.s.orderLines[orderID] = append(f.s.orderLines[orderID], line)
	return line.ID, nil
}

func (f *fakeOrderRepo) CreateInvoice(ctx context.Context, tx *sql.Tx, orderID int64, issuedAt time.Time) (*models.Invoice, error) {
	inv := &models.Invoice{ID: f.s.id(), OrderID: orderID, IssuedAt: issuedAt}
	f.s.invoices[orderID] = inv
	return inv, nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	o, ok := f.s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) GetOrderLines(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	for _, l := range f.s.orderLines[orderID] {
		if b, ok := f.s.books[l.BookID]; ok {
			l.BookTitle = b.Title
			l.SellerID = b.SellerID
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (f *fakeOrderRepo) GetInvoiceByOrderID(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Invoice, error) {
	inv, ok := f.s.invoices[orderID]
	if !ok {
		return nil, storage.ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, version int) error {
	o, ok := f.s.orders[id]
	if !ok {
		return storage.ErrConflict
	}
	if f.s.beforeStatusUpdate != nil {
		f.s.beforeStatusUpdate(o)
	}
	if o.Version != version {
		return storage.ErrConflict
	}
	o.Status = status
	o.Version++
	return nil
}

func (f *fakeOrderRepo) DeleteOrder(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, ok := f.s.orders[id]; !ok {
		return storage.ErrOrderNotFound
	}
	delete(f.s.orderLines, id)
	delete(f.s.invoices, id)
	delete(f.s.orders, id)
	return nil
}

func (f *fakeOrderRepo) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return f.list(func(*models.Order) bool { return true })
}

func (f *fakeOrderRepo) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	return f.list(func(o *models.Order) bool { return o.BuyerID == buyerID })
}

func (f *fakeOrderRepo) ListOrdersBySeller(ctx context.Context, sellerID int64) ([]*models.Order, error) {
	return f.list(func(o *models.Order) bool { return o.HasSeller(sellerID) })
}

func (f *fakeOrderRepo) list(keep func(*models.Order) bool) ([]*models.Order, error) {
	orders := []*models.Order{}
	for _, o := range f.s.orders {
		cp := *o
		cp.Lines, _ = f.GetOrderLines(context.Background(), nil, o.ID)
		if keep(&cp) {
			orders = append(orders, &cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

type fakeUserRepo struct{ s *fakeStore }

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.s.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return u, nil
}

type publishedEvent struct {
	key   string
	event any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{key: key, event: event})
	return nil
}

type fakeMetrics struct {
	placed   int
	revenue  decimal.Decimal
	statuses []models.OrderStatus
}

func (m *fakeMetrics) OrderPlaced(ctx context.Context, total decimal.Decimal) {
	m.placed++
	m.revenue = m.revenue.Add(total)
}

func (m *fakeMetrics) StatusChanged(ctx context.Context, status models.OrderStatus) {
	m.statuses = append(m.statuses, status)
}

var errBroker = errors.New("broker unavailable")
