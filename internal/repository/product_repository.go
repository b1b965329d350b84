package repository

import (
	"context"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
)

// ProductRepository is a read-only view of the catalog.
type ProductRepository interface {
	GetGame(ctx context.Context, id uint) (*models.Game, error)
	GetMerch(ctx context.Context, id uint) (*models.Merch, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := r.db.WithContext(ctx).First(&game, id).Error; err != nil {
		return nil, notFound(err, "game", id)
	}
	return &game, nil
}

func (r *productRepository) GetMerch(ctx context.Context, id uint) (*models.Merch, error) {
	var merch models.Merch
	if err := r.db.WithContext(ctx).Preload("Sizes").First(&merch, id).Error; err != nil {
		return nil, notFound(err, "merch", id)
	}
	return &merch, nil
}
