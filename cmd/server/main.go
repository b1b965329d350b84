package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order_fulfillment/internal/config"
	"order_fulfillment/internal/database"
	"order_fulfillment/internal/handlers"
	"order_fulfillment/internal/migrations"
	"order_fulfillment/internal/redis"
	"order_fulfillment/internal/repository"
	"order_fulfillment/internal/services"
	"order_fulfillment/pkg/events"
	"order_fulfillment/pkg/mailer"
	"order_fulfillment/pkg/shipstation"
	"order_fulfillment/pkg/teamchat"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting order fulfillment server",
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
	)

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL, !cfg.IsProduction(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := migrations.RunMigrations(context.Background(), db, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	store := repository.NewStore(db)

	// Redis is optional: without it rates are not cached and webhooks rely on the database constraints alone.
	rateOpts := services.RateOptions{
		Timeout:        cfg.RateTimeout,
		CacheTTL:       cfg.RateCacheTTL,
		FromPostalCode: cfg.ShipFromPostalCode,
	}
	webhookOpts := services.WebhookOptions{
		Secret:  cfg.ShipStationWebhookSecret,
		LockTTL: cfg.WebhookLockTTL,
	}
	if cfg.RedisURL != "" {
		redisClient, err := redis.Initialize(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache and locks", zap.Error(err))
		} else {
			defer redisClient.Close()
			rateOpts.Cache = redisClient
			webhookOpts.Locker = redisClient
		}
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", zap.Error(err))
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	}

	// External clients
	var fetcher services.ShipmentFetcher
	shipStation := shipstation.NewClient(cfg.ShipStationAPIURL, cfg.ShipStationAPIKey, cfg.ShipStationAPISecret, cfg.RateTimeout)
	if shipStation.Configured() {
		rateOpts.Provider = shipStation
		fetcher = shipStation
	} else {
		logger.Warn("ShipStation credentials missing, live rates and shipment sync disabled")
	}
	if cfg.ShipStationWebhookSecret == "" {
		logger.Warn("SHIPSTATION_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}

	var mail services.Mailer
	if m := mailer.NewClient(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom); m.Configured() {
		mail = m
	}
	var chat services.ChatNotifier
	if t := teamchat.NewClient(cfg.TeamChatWebhookURL, "Shipping Bot"); t.Configured() {
		chat = t
	}

	// Initialize services
	settingsService := services.NewSettingsService(store.Settings(), services.Settings{
		RateProviderEnabled: cfg.RateProviderEnabled,
		NotifyCustomerEmail: true,
		NotifyTeamChat:      true,
	}, logger)
	notifier := services.NewNotifier(mail, chat, publisher, cfg.NotifyTimeout, logger)
	catalog := services.NewCatalog(store.Products())
	weightResolver := services.NewWeightResolver(catalog, logger)

	router := handlers.NewRouter(handlers.Services{
		Fulfillment: services.NewFulfillmentService(store, catalog, notifier, logger),
		Rates:       services.NewRateService(store.Orders(), weightResolver, settingsService, rateOpts, logger),
		Webhooks:    services.NewWebhookService(store, fetcher, settingsService, notifier, webhookOpts, logger),
		Orders:      services.NewOrderService(store.Orders(), store.Labels()),
		Users:       services.NewUserService(store.Users()),
	}, cfg.IsProduction(), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("Server started successfully", zap.String("address", srv.Addr))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight customer emails and chat messages finish.
	notifier.Wait()
	logger.Info("Server exited")
}
