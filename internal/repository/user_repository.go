package repository

import (
	"context"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByAPIKeyLookup(ctx context.Context, lookup string) (*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return duplicate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &user, nil
}

func (r *userRepository) GetByAPIKeyLookup(ctx context.Context, lookup string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("api_key_lookup = ?", lookup).First(&user).Error; err != nil {
		return nil, notFound(err, "user", "api key")
	}
	return &user, nil
}
