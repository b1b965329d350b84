package repository

import (
	"context"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
)

type PackagingTypeRepository interface {
	Create(ctx context.Context, packagingType *models.PackagingType) error
	GetByID(ctx context.Context, id uint) (*models.PackagingType, error)
	ListActive(ctx context.Context) ([]models.PackagingType, error)
}

type packagingTypeRepository struct {
	db *gorm.DB
}

func NewPackagingTypeRepository(db *gorm.DB) PackagingTypeRepository {
	return &packagingTypeRepository{db: db}
}

func (r *packagingTypeRepository) Create(ctx context.Context, packagingType *models.PackagingType) error {
	return duplicate(r.db.WithContext(ctx).Create(packagingType).Error)
}

func (r *packagingTypeRepository) GetByID(ctx context.Context, id uint) (*models.PackagingType, error) {
	var packagingType models.PackagingType
	if err := r.db.WithContext(ctx).First(&packagingType, id).Error; err != nil {
		return nil, notFound(err, "packaging type", id)
	}
	return &packagingType, nil
}

func (r *packagingTypeRepository) ListActive(ctx context.Context) ([]models.PackagingType, error) {
	var types []models.PackagingType
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&types).Error
	return types, err
}
