package repository

import (
	"context"
	"time"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
)

type ShippingLabelRepository interface {
	// Create returns ErrDuplicate when the order already has a label with the same tracking number.
	Create(ctx context.Context, label *models.ShippingLabel) error
	ListByOrder(ctx context.Context, orderID uint) ([]models.ShippingLabel, error)
	// VoidActive stamps every active label of the order whose tracking number differs from keepTracking.
	VoidActive(ctx context.Context, orderID uint, keepTracking string, at time.Time) (int64, error)
}

type shippingLabelRepository struct {
	db *gorm.DB
}

func NewShippingLabelRepository(db *gorm.DB) ShippingLabelRepository {
	return &shippingLabelRepository{db: db}
}

func (r *shippingLabelRepository) Create(ctx context.Context, label *models.ShippingLabel) error {
	return duplicate(r.db.WithContext(ctx).Create(label).Error)
}

func (r *shippingLabelRepository) ListByOrder(ctx context.Context, orderID uint) ([]models.ShippingLabel, error) {
	var labels []models.ShippingLabel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&labels).Error
	return labels, err
}

func (r *shippingLabelRepository) VoidActive(ctx context.Context, orderID uint, keepTracking string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ShippingLabel{}).
		Where("order_id = ? AND voided_at IS NULL AND tracking_number <> ?", orderID, keepTracking).
		Update("voided_at", at)
	return result.RowsAffected, result.Error
}
