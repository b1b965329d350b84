package models

import (
	"time"
)

type Order struct {
	ID                    uint        `json:"id" gorm:"primaryKey"`
	OrderNumber           string      `json:"order_number" gorm:"uniqueIndex;not null"`
	CustomerName          string      `json:"customer_name" gorm:"not null"`
	CustomerEmail         string      `json:"customer_email"`
	CustomerPhone         string      `json:"customer_phone"`
	ShippingAddress       string      `json:"shipping_address" gorm:"type:text"` // free text, see services.ParseAddress
	SubtotalCents         int64       `json:"subtotal_cents"`
	ShippingCents         int64       `json:"shipping_cents"`
	TaxCents              int64       `json:"tax_cents"`
	TotalCents            int64       `json:"total_cents" gorm:"not null"`
	Status                OrderStatus `json:"status" gorm:"type:varchar(32);default:'pending';index"`
	PaymentStatus         string      `json:"payment_status" gorm:"type:varchar(32);default:'unpaid'"` // unpaid, paid, refunded
	ShippingCarrier       string      `json:"shipping_carrier"`
	ShippingService       string      `json:"shipping_service"`
	TrackingNumber        string      `json:"tracking_number" gorm:"index"`
	ShippedAt             *time.Time  `json:"shipped_at"`
	EstimatedDeliveryDate *time.Time  `json:"estimated_delivery_date"`
	PackagingTypeID       *uint       `json:"packaging_type_id"`
	Items                 []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderPacked     OrderStatus = "packed"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderArchived   OrderStatus = "archived"
)

const PaymentPaid = "paid"

// IsPaid reports whether payment capture has completed for the order.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// IsClosed reports whether the order has left the fulfillment lifecycle.
func (o *Order) IsClosed() bool {
	return o.Status == OrderCancelled || o.Status == OrderArchived
}

// OrderStatusHistory is append-only.
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status" gorm:"type:varchar(32)"`
	ToStatus   OrderStatus `json:"to_status" gorm:"type:varchar(32);not null"`
	Notes      string      `json:"notes" gorm:"type:text"`
	ChangedBy  string      `json:"changed_by"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
