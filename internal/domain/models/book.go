package models

import "github.com/shopspring/decimal"

// ApprovalStatus статус модерации книги
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Beklemede"
	ApprovalApproved ApprovalStatus = "Onaylandı"
	ApprovalRejected ApprovalStatus = "Reddedildi"
)

// Book представляет книгу каталога, выставленную продавцом
type Book struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	Stock          int             `json:"stock"`
	ApprovalStatus ApprovalStatus  `json:"approval_status"`
	SellerID       int64           `json:"seller_id"`
	Version        int             `json:"-"` // токен оптимистичной блокировки
}
