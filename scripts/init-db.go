package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"order_fulfillment/internal/config"
	"order_fulfillment/internal/database"
	"order_fulfillment/internal/migrations"
	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	"order_fulfillment/internal/services"
	apperrors "order_fulfillment/pkg/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	reset := flag.Bool("reset", false, "drop every table before migrating")
	demo := flag.Bool("demo", true, "seed a demo catalog and a paid order")
	flag.Parse()

	fmt.Println("Initializing database...")
	ctx := context.Background()

	cfg := config.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := database.Initialize(cfg.DatabaseURL, false, logger)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if *reset {
		fmt.Println("Dropping existing tables...")
		if err := db.Migrator().DropTable(migrations.AllModels()...); err != nil {
			log.Printf("Warning: Error dropping tables: %v", err)
		}
	}

	fmt.Println("Creating tables...")
	if err := migrations.RunMigrations(ctx, db, logger); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	store := repository.NewStore(db)

	// Create default super admin user
	fmt.Println("Creating default super admin user...")
	userService := services.NewUserService(store.Users())
	if _, err := store.Users().GetByUsername(ctx, "admin"); err == nil {
		fmt.Println("Super admin user already exists")
	} else if !apperrors.IsNotFound(err) {
		log.Fatal("Failed to look up admin user:", err)
	} else {
		apiKey, err := userService.CreateUser(ctx, &models.User{
			Username: "admin",
			Email:    "admin@example.com",
			Role:     string(models.SuperAdmin),
		})
		if err != nil {
			log.Fatal("Failed to create super admin user:", err)
		}
		fmt.Println("Super admin user created. API key (shown once):")
		fmt.Println("  " + apiKey)
	}

	if *demo {
		if err := seedDemo(ctx, db, store); err != nil {
			log.Fatal("Failed to seed demo data:", err)
		}
	}

	fmt.Println("Database initialization completed successfully!")
}

func seedDemo(ctx context.Context, db *gorm.DB, store repository.Store) error {
	if _, err := store.Orders().GetByOrderNumber(ctx, "DEMO-1001"); err == nil {
		fmt.Println("Demo order already exists")
		return nil
	}

	fmt.Println("Seeding demo catalog and order...")
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gameWeight := 28.0
		game := models.Game{Title: "Harbor Lights", SKU: "GAME-HL-001", Barcode: "0850000000011", WeightOz: &gameWeight}
		if err := tx.Create(&game).Error; err != nil {
			return err
		}
		shirt := models.Merch{
			Name:    "Harbor Lights T-Shirt",
			SKU:     "MERCH-HL-TEE",
			Barcode: "0850000000028",
			Weight:  "6 oz",
			Sizes: []models.MerchSize{
				{Size: "M", SKU: "MERCH-HL-TEE-M", Barcode: "0850000000035"},
				{Size: "L", SKU: "MERCH-HL-TEE-L", Barcode: "0850000000042"},
			},
		}
		if err := tx.Create(&shirt).Error; err != nil {
			return err
		}

		order := models.Order{
			OrderNumber:     "DEMO-1001",
			CustomerName:    "Jane Doe",
			CustomerEmail:   "jane@example.com",
			ShippingAddress: "Jane Doe\n123 Main St\nSpringfield, IL 62704",
			SubtotalCents:   7800,
			ShippingCents:   595,
			TotalCents:      8395,
			Status:          models.OrderPaid,
			PaymentStatus:   models.PaymentPaid,
			Items: []models.OrderItem{
				{Product: models.ProductRef{Kind: models.ProductGame, ID: game.ID}, Quantity: 2, UnitPriceCents: 3000},
				{Product: models.ProductRef{Kind: models.ProductMerch, ID: shirt.ID, Size: "M"}, Quantity: 1, UnitPriceCents: 1800},
			},
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}
		fmt.Printf("Demo order %s created (id %d)\n", order.OrderNumber, order.ID)
		return nil
	})
}
