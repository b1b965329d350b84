package repository

import (
	"context"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
)

type SettingsRepository interface {
	CreateSetting(ctx context.Context, setting *models.AppSetting) error
	GetSetting(ctx context.Context, settingName string) (*models.AppSetting, error)
	ListActive(ctx context.Context) ([]models.AppSetting, error)
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) CreateSetting(ctx context.Context, setting *models.AppSetting) error {
	return duplicate(r.db.WithContext(ctx).Create(setting).Error)
}

func (r *settingsRepository) GetSetting(ctx context.Context, settingName string) (*models.AppSetting, error) {
	var setting models.AppSetting
	err := r.db.WithContext(ctx).Where("setting_name = ? AND is_active = ?", settingName, true).First(&setting).Error
	if err != nil {
		return nil, notFound(err, "setting", settingName)
	}
	return &setting, nil
}

func (r *settingsRepository) ListActive(ctx context.Context) ([]models.AppSetting, error) {
	var settings []models.AppSetting
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&settings).Error
	return settings, err
}
