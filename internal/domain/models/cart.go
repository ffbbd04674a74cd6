package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart корзина пользователя, создаётся при первом добавлении товара
type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Lines     []CartLine `json:"lines"`
}

// CartLine строка корзины. Поля Book* заполняются через JOIN с таблицей books
type CartLine struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"cart_id"`
	BookID    int64           `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	AddedAt   time.Time       `json:"added_at"`

	BookTitle   string          `json:"book_title"`
	BookPrice   decimal.Decimal `json:"-"`
	BookStock   int             `json:"-"`
	BookVersion int             `json:"-"`
}

// Subtotal стоимость строки по зафиксированной цене
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total сумма всех строк корзины
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ItemCount общее количество единиц товара в корзине
func (c *Cart) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}
