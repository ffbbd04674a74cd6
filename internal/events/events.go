package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/linemk/bookstore/internal/domain/models"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

// Event общее для всех событий заказа: тип и id уходят в заголовки сообщения,
// чтобы потребитель мог отфильтровать или отбросить дубль без разбора тела.
type Event interface {
	EventType() string
	ID() string
	OccurredAt() time.Time
}

// OrderPlaced публикуется после фиксации транзакции оформления заказа
type OrderPlaced struct {
	EventID   string       `json:"event_id"`
	Type      string       `json:"type"`
	OrderID   int64        `json:"order_id"`
	BuyerID   int64        `json:"buyer_id"`
	Total     string       `json:"total"`
	Lines     []PlacedLine `json:"lines"`
	Timestamp time.Time    `json:"timestamp"`
}

type PlacedLine struct {
	BookID    int64  `json:"book_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderStatusChanged публикуется после смены статуса заказа
type OrderStatusChanged struct {
	EventID   string             `json:"event_id"`
	Type      string             `json:"type"`
	OrderID   int64              `json:"order_id"`
	ActorID   int64              `json:"actor_id"`
	From      models.OrderStatus `json:"from"`
	To        models.OrderStatus `json:"to"`
	Restocked bool               `json:"restocked"`
	Timestamp time.Time          `json:"timestamp"`
}

func NewOrderPlaced(order *models.Order) OrderPlaced {
	lines := make([]PlacedLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, PlacedLine{
			BookID:    l.BookID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}
	return OrderPlaced{
		EventID:   uuid.NewString(),
		Type:      TypeOrderPlaced,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Total:     order.Total.StringFixed(2),
		Lines:     lines,
		Timestamp: order.OrderedAt.UTC(),
	}
}

func NewOrderStatusChanged(orderID, actorID int64, from, to models.OrderStatus, restocked bool) OrderStatusChanged {
	return OrderStatusChanged{
		EventID:   uuid.NewString(),
		Type:      TypeOrderStatusChanged,
		OrderID:   orderID,
		ActorID:   actorID,
		From:      from,
		To:        to,
		Restocked: restocked,
		Timestamp: time.Now().UTC(),
	}
}

func (e OrderPlaced) EventType() string     { return e.Type }
func (e OrderPlaced) ID() string            { return e.EventID }
func (e OrderPlaced) OccurredAt() time.Time { return e.Timestamp }

func (e OrderStatusChanged) EventType() string     { return e.Type }
func (e OrderStatusChanged) ID() string            { return e.EventID }
func (e OrderStatusChanged) OccurredAt() time.Time { return e.Timestamp }
