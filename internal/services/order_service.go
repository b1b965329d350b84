package services

import (
	"context"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
)

// OrderService exposes read views of an order's shipping state.
type OrderService interface {
	GetOrderByID(ctx context.Context, id uint) (*models.Order, error)
	GetStatusHistory(ctx context.Context, orderID uint) ([]models.OrderStatusHistory, error)
	GetShippingLabels(ctx context.Context, orderID uint) ([]models.ShippingLabel, error)
	GetShippingSummary(ctx context.Context, orderID uint) (map[string]interface{}, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	labelRepo repository.ShippingLabelRepository
}

func NewOrderService(orderRepo repository.OrderRepository, labelRepo repository.ShippingLabelRepository) OrderService {
	return &orderService{orderRepo: orderRepo, labelRepo: labelRepo}
}

func (s *orderService) GetOrderByID(ctx context.Context, id uint) (*models.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

func (s *orderService) GetStatusHistory(ctx context.Context, orderID uint) ([]models.OrderStatusHistory, error) {
	if _, err := s.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.orderRepo.GetHistory(ctx, orderID)
}

func (s *orderService) GetShippingLabels(ctx context.Context, orderID uint) ([]models.ShippingLabel, error) {
	if _, err := s.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.labelRepo.ListByOrder(ctx, orderID)
}

func (s *orderService) GetShippingSummary(ctx context.Context, orderID uint) (map[string]interface{}, error) {
	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	labels, err := s.labelRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var active *models.ShippingLabel
	var labelCostCents int64
	voided := 0
	for i := range labels {
		if labels[i].IsActive() {
			active = &labels[i]
			labelCostCents += labels[i].CostCents
		} else {
			voided++
		}
	}

	summary := map[string]interface{}{
		"order_id":                order.ID,
		"order_number":            order.OrderNumber,
		"status":                  order.Status,
		"carrier":                 order.ShippingCarrier,
		"service":                 order.ShippingService,
		"tracking_number":         order.TrackingNumber,
		"tracking_url":            TrackingURL(carrierCodeOf(active), order.TrackingNumber),
		"shipped_at":              order.ShippedAt,
		"estimated_delivery_date": order.EstimatedDeliveryDate,
		"shipping_charged_cents":  order.ShippingCents,
		"label_cost_cents":        labelCostCents,
		"voided_labels":           voided,
	}
	return summary, nil
}

func carrierCodeOf(label *models.ShippingLabel) string {
	if label == nil {
		return ""
	}
	return label.CarrierCode
}
