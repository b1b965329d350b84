package models

import (
	"time"

	"gorm.io/datatypes"
)

// ShippingLabel is a historical record. At most one label per order has VoidedAt unset.
type ShippingLabel struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	OrderID        uint           `json:"order_id" gorm:"not null;uniqueIndex:idx_label_order_tracking"`
	TrackingNumber string         `json:"tracking_number" gorm:"not null;uniqueIndex:idx_label_order_tracking"`
	Carrier        string         `json:"carrier"`
	CarrierCode    string         `json:"carrier_code"`
	ServiceCode    string         `json:"service_code"`
	CostCents      int64          `json:"cost_cents"`
	WeightOz       float64        `json:"weight_oz"`
	LengthIn       float64        `json:"length_in"`
	WidthIn        float64        `json:"width_in"`
	HeightIn       float64        `json:"height_in"`
	ShipDate       *time.Time     `json:"ship_date"`
	RawShipment    datatypes.JSON `json:"raw_shipment,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at"`
	VoidedAt       *time.Time     `json:"voided_at"`
}

func (l *ShippingLabel) IsActive() bool {
	return l.VoidedAt == nil
}
