package models

import (
	"time"
)

// ProductKind tags which catalog a line item points into.
type ProductKind string

const (
	ProductGame  ProductKind = "game"
	ProductMerch ProductKind = "merch"
)

func (k ProductKind) IsValid() bool {
	return k == ProductGame || k == ProductMerch
}

// ProductRef is a tagged reference into exactly one catalog.
type ProductRef struct {
	Kind ProductKind `json:"kind" gorm:"column:product_kind;type:varchar(16);not null"`
	ID   uint        `json:"id" gorm:"column:product_id;not null"`
	Size string      `json:"size,omitempty" gorm:"column:size"` // merch only
}

type OrderItem struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	OrderID        uint       `json:"order_id" gorm:"not null;index"`
	Product        ProductRef `json:"product" gorm:"embedded"`
	Quantity       int        `json:"quantity" gorm:"not null"`
	UnitPriceCents int64      `json:"unit_price_cents" gorm:"not null"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (i *OrderItem) TotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
