package migrations

import (
	"context"
	"errors"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllModels lists every table owned or read by this service.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Game{},
		&models.Merch{},
		&models.MerchSize{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.PackagingType{},
		&models.Fulfillment{},
		&models.FulfillmentScan{},
		&models.Package{},
		&models.ShippingLabel{},
		&models.AppSetting{},
	}
}

// RunMigrations migrates the schema and creates default data
func RunMigrations(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log.Info("Running database migrations...")

	if err := db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return err
	}

	if err := createDefaultData(ctx, repository.NewStore(db), log); err != nil {
		log.Warn("Failed to create default data", zap.Error(err))
	}

	log.Info("Database migrations completed")
	return nil
}

// DefaultPackagingTypes are seeded on first migration.
func DefaultPackagingTypes() []models.PackagingType {
	return []models.PackagingType{
		{Name: "Small Box", LengthIn: 9, WidthIn: 6, HeightIn: 3, CostCents: 85, IsActive: true},
		{Name: "Medium Box", LengthIn: 12, WidthIn: 9, HeightIn: 4, CostCents: 120, IsActive: true},
		{Name: "Large Box", LengthIn: 16, WidthIn: 12, HeightIn: 6, CostCents: 175, IsActive: true},
		{Name: "Poly Mailer", LengthIn: 12, WidthIn: 10, HeightIn: 1, CostCents: 35, IsActive: true},
	}
}

func createDefaultData(ctx context.Context, store repository.Store, log *zap.Logger) error {
	for _, pt := range DefaultPackagingTypes() {
		pt := pt
		err := store.PackagingTypes().Create(ctx, &pt)
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}

	defaults := []models.AppSetting{
		{SettingName: models.SettingRateProviderEnabled, Value: "true", IsActive: true, UpdatedBy: "migration"},
		{SettingName: models.SettingNotifyCustomerEmail, Value: "true", IsActive: true, UpdatedBy: "migration"},
		{SettingName: models.SettingNotifyTeamChat, Value: "true", IsActive: true, UpdatedBy: "migration"},
	}
	for _, s := range defaults {
		s := s
		err := store.Settings().CreateSetting(ctx, &s)
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}

	log.Info("Default packaging types and settings ensured")
	return nil
}
