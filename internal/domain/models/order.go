package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Beklemede"
	OrderStatusPreparing OrderStatus = "Hazırlanıyor"
	OrderStatusShipped   OrderStatus = "Kargoda"
	OrderStatusDelivered OrderStatus = "Teslim Edildi"
	OrderStatusCancelled OrderStatus = "İptal Edildi"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid проверяет, что статус входит в допустимый набор
func (s OrderStatus) Valid() bool {
	for _, st := range orderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Order представляет оформленный заказ. После создания меняется только Status
type Order struct {
	ID        int64           `json:"id"`
	BuyerID   int64           `json:"buyer_id"`
	AddressID int64           `json:"delivery_address_id"`
	OrderedAt time.Time       `json:"ordered_at"`
	Status    OrderStatus     `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Version   int             `json:"-"`
	Lines     []OrderLine     `json:"lines"`
	Invoice   *Invoice        `json:"invoice,omitempty"`
}

// OrderLine замороженная копия строки корзины на момент заказа
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	BookID    int64           `json:"book_id"`
	BookTitle string          `json:"book_title"` // заполняется через JOIN с таблицей books
	SellerID  int64           `json:"seller_id"`  // заполняется через JOIN с таблицей books
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal стоимость строки заказа
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// HasSeller проверяет, есть ли в заказе книги указанного продавца
func (o *Order) HasSeller(sellerID int64) bool {
	for _, line := range o.Lines {
		if line.SellerID == sellerID {
			return true
		}
	}
	return false
}

// Invoice счёт, создаётся вместе с заказом
type Invoice struct {
	ID       int64     `json:"id"`
	OrderID  int64     `json:"order_id"`
	IssuedAt time.Time `json:"issued_at"`
}
