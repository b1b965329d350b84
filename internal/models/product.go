package models

import "time"

// Game, Merch and MerchSize belong to the catalog and are read-only here.

type Game struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null"`
	SKU       string    `json:"sku" gorm:"index"`
	Barcode   string    `json:"barcode" gorm:"index"`
	ImageURL  string    `json:"image_url"`
	WeightOz  *float64  `json:"weight_oz"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Merch struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	Name      string      `json:"name" gorm:"not null"`
	SKU       string      `json:"sku" gorm:"index"`
	Barcode   string      `json:"barcode" gorm:"index"`
	ImageURL  string      `json:"image_url"`
	Weight    string      `json:"weight"` // free text, e.g. "8 oz" or "0.5 lbs"
	Sizes     []MerchSize `json:"sizes,omitempty" gorm:"foreignKey:MerchID"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Merch) TableName() string {
	return "merch"
}

type MerchSize struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	MerchID uint   `json:"merch_id" gorm:"not null;index"`
	Size    string `json:"size" gorm:"not null"`
	SKU     string `json:"sku"`
	Barcode string `json:"barcode"`
}
