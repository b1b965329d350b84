package models

import (
	"time"
)

type FulfillmentStatus string

const (
	// FulfillmentNotStarted is never stored; it is reported when no row exists.
	FulfillmentNotStarted FulfillmentStatus = "not_started"
	FulfillmentInProgress FulfillmentStatus = "in_progress"
	FulfillmentCompleted  FulfillmentStatus = "completed"
)

type Fulfillment struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	OrderID         uint              `json:"order_id" gorm:"uniqueIndex;not null"`
	Status          FulfillmentStatus `json:"status" gorm:"type:varchar(32);not null"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at"`
	StartedByID     string            `json:"started_by_id"`
	StartedByName   string            `json:"started_by_name"`
	CompletedByName string            `json:"completed_by_name"`
	Notes           string            `json:"notes" gorm:"type:text"`
	PackagingTypeID *uint             `json:"packaging_type_id"`
	Scans           []FulfillmentScan `json:"scans,omitempty" gorm:"foreignKey:FulfillmentID"`
	Packages        []Package         `json:"packages,omitempty" gorm:"foreignKey:FulfillmentID"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FulfillmentScan is immutable apart from its package assignment.
type FulfillmentScan struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	FulfillmentID uint      `json:"fulfillment_id" gorm:"not null;index"`
	OrderItemID   *uint     `json:"order_item_id" gorm:"index"`
	ScannedCode   string    `json:"scanned_code" gorm:"not null"`
	Quantity      int       `json:"quantity" gorm:"not null"`
	Matched       bool      `json:"matched" gorm:"not null"`
	PackageID     *uint     `json:"package_id" gorm:"index"`
	ScannedBy     string    `json:"scanned_by"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// Package is a physical box. BoxNumber is sequential within a fulfillment.
type Package struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	FulfillmentID   uint      `json:"fulfillment_id" gorm:"not null;uniqueIndex:idx_package_box"`
	BoxNumber       int       `json:"box_number" gorm:"not null;uniqueIndex:idx_package_box"`
	PackagingTypeID uint      `json:"packaging_type_id" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
}

type PackagingType struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	Name      string  `json:"name" gorm:"uniqueIndex;not null"`
	LengthIn  float64 `json:"length_in"`
	WidthIn   float64 `json:"width_in"`
	HeightIn  float64 `json:"height_in"`
	CostCents int64   `json:"cost_cents"`
	IsActive  bool    `json:"is_active" gorm:"default:true"`
}
