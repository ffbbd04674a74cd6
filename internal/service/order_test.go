package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/events"
	"github.com/linemk/bookstore/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	store     *fakeStore
	svc       service.OrderService
	publisher *fakePublisher
	metrics   *fakeMetrics
	mock      sqlmock.Sqlmock
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := newFakeStore()
	publisher := &fakePublisher{}
	metrics := &fakeMetrics{}
	return &orderFixture{
		store:     store,
		svc:       service.NewOrderService(discardLogger(), db, &fakeBookRepo{store}, &fakeOrderRepo{store}, publisher, metrics),
		publisher: publisher,
		metrics:   metrics,
		mock:      mock,
	}
}

// seedOrder создаёт заказ покупателя на указанные книги по 2 штуки каждой
func seedOrder(store *fakeStore, buyerID int64, status models.OrderStatus, bookIDs ...int64) *models.Order {
	order := &models.Order{
		ID:        store.id(),
		BuyerID:   buyerID,
		AddressID: 1,
		OrderedAt: time.Now(),
		Status:    status,
		Total:     money("0"),
	}
	for _, bookID := range bookIDs {
		line := models.OrderLine{ID: store.id(), OrderID: order.ID, BookID: bookID, Quantity: 2, UnitPrice: money("20.00")}
		store.orderLines[order.ID] = append(store.orderLines[order.ID], line)
		order.Total = order.Total.Add(line.Subtotal())
	}
	store.orders[order.ID] = order
	store.invoices[order.ID] = &models.Invoice{ID: store.id(), OrderID: order.ID, IssuedAt: order.OrderedAt}
	return order
}

func TestOrderService_CancelRestocksOnce(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	order := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.UpdateStatus(ctx, admin, order.ID, models.OrderStatusCancelled))
	assert.Equal(t, 5, f.store.books[1].Stock)
	assert.Equal(t, models.OrderStatusCancelled, f.store.orders[order.ID].Status)

	// Повторная отмена уже отменённого заказа остатки не трогает
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.UpdateStatus(ctx, admin, order.ID, models.OrderStatusCancelled))
	assert.Equal(t, 5, f.store.books[1].Stock)

	require.Len(t, f.publisher.events, 2)
	first, ok := f.publisher.events[0].event.(events.OrderStatusChanged)
	require.True(t, ok)
	assert.True(t, first.Restocked)
	second := f.publisher.events[1].event.(events.OrderStatusChanged)
	assert.False(t, second.Restocked)
	assert.Equal(t, []models.OrderStatus{models.OrderStatusCancelled, models.OrderStatusCancelled}, f.metrics.statuses)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderService_ConcurrentCancelLoses(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	order := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)

	// Другая транзакция успела отменить заказ между чтением и записью
	f.store.beforeStatusUpdate = func(o *models.Order) {
		o.Status = models.OrderStatusCancelled
		o.Version++
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.UpdateStatus(context.Background(), admin, order.ID, models.OrderStatusCancelled)
	assert.True(t, errors.Is(err, service.ErrConcurrencyConflict))
	assert.Equal(t, 3, f.store.books[1].Stock, "losing transaction must not restock")
	assert.Empty(t, f.publisher.events)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderService_NonCancelTransitionsKeepStock(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	order := seedOrder(f.store, customer.UserID, models.OrderStatusCancelled, 1)

	// Из отменённого можно вернуться в любой статус, остаток при этом не меняется
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.UpdateStatus(context.Background(), admin, order.ID, models.OrderStatusShipped))
	assert.Equal(t, 3, f.store.books[1].Stock)
	assert.Equal(t, models.OrderStatusShipped, f.store.orders[order.ID].Status)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderService_UpdateStatus_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		actor   models.Actor
		wantErr error
	}{
		{name: "admin", actor: admin},
		{name: "seller of a line", actor: seller},
		{name: "seller without books", actor: models.Actor{UserID: 8, Role: models.RoleSeller}, wantErr: service.ErrUnauthorized},
		{name: "buyer", actor: customer, wantErr: service.ErrUnauthorized},
		{name: "unknown role", actor: models.Actor{UserID: 7, Role: "Misafir"}, wantErr: service.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture(t)
			f.store.addBook(1, "20.00", 3, seller.UserID)
			order := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)

			f.mock.ExpectBegin()
			if tt.wantErr == nil {
				f.mock.ExpectCommit()
			} else {
				f.mock.ExpectRollback()
			}

			err := f.svc.UpdateStatus(context.Background(), tt.actor, order.ID, models.OrderStatusShipped)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.Equal(t, models.OrderStatusShipped, f.store.orders[order.ID].Status)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, models.OrderStatusPreparing, f.store.orders[order.ID].Status)
			}
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestOrderService_UpdateStatus_InvalidInput(t *testing.T) {
	f := newOrderFixture(t)

	err := f.svc.UpdateStatus(context.Background(), admin, 1, "Kayıp")
	assert.True(t, errors.Is(err, service.ErrValidation))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.UpdateStatus(context.Background(), admin, 404, models.OrderStatusShipped)
	assert.True(t, errors.Is(err, service.ErrNotFound))

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderService_ListOrders(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	mine := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)
	seedOrder(f.store, 2, models.OrderStatusPreparing, 1)

	orders, err := f.svc.ListOrders(context.Background(), customer)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mine.ID, orders[0].ID)

	all, err := f.svc.ListOrders(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Greater(t, all[0].ID, all[1].ID, "newest first")
}

func TestOrderService_GetOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	order := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)

	got, err := f.svc.GetOrder(context.Background(), customer, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Invoice)
	assert.Len(t, got.Lines, 1)
	assert.Equal(t, seller.UserID, got.Lines[0].SellerID)

	_, err = f.svc.GetOrder(context.Background(), seller, order.ID)
	assert.NoError(t, err, "seller of a line may view the order")

	_, err = f.svc.GetOrder(context.Background(), admin, order.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), models.Actor{UserID: 2, Role: models.RoleCustomer}, order.ID)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	_, err = f.svc.GetOrder(context.Background(), admin, 404)
	assert.True(t, errors.Is(err, service.ErrNotFound))
}

func TestOrderService_IncomingOrders(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	f.store.addBook(2, "20.00", 3, 8)
	withMine := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1, 2)
	seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 2)

	orders, err := f.svc.IncomingOrders(context.Background(), seller)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, withMine.ID, orders[0].ID)

	_, err = f.svc.IncomingOrders(context.Background(), customer)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))
}

func TestOrderService_DeleteOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.store.addBook(1, "20.00", 3, seller.UserID)
	order := seedOrder(f.store, customer.UserID, models.OrderStatusPreparing, 1)

	err := f.svc.DeleteOrder(context.Background(), seller, order.ID)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.DeleteOrder(context.Background(), admin, order.ID))
	assert.NotContains(t, f.store.orders, order.ID)
	assert.NotContains(t, f.store.invoices, order.ID)
	assert.Equal(t, 3, f.store.books[1].Stock, "deleting an order does not restock")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.DeleteOrder(context.Background(), admin, order.ID)
	assert.True(t, errors.Is(err, service.ErrNotFound))

	assert.NoError(t, f.mock.ExpectationsWereMet())
}
