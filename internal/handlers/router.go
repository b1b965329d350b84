package handlers

import (
	"net/http"

	"order_fulfillment/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services bundles what the router needs.
type Services struct {
	Fulfillment services.FulfillmentService
	Rates       services.RateService
	Webhooks    services.WebhookService
	Orders      services.OrderService
	Users       services.UserService
}

// NewRouter creates and configures the Gin router
func NewRouter(svc Services, production bool, log *zap.Logger) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestID())
	router.Use(customRecovery(log))
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	fulfillmentHandler := NewFulfillmentHandler(svc.Fulfillment, log)
	shippingHandler := NewShippingHandler(svc.Rates, svc.Webhooks, svc.Orders, log)

	api := router.Group("/api")
	{
		// Public: storefront checkout and carrier callbacks
		api.POST("/shipping/rates", shippingHandler.GetRates)
		api.POST("/webhooks/shipstation", shippingHandler.HandleWebhook)

		admin := api.Group("")
		admin.Use(AdminAuth(svc.Users, log))
		{
			admin.GET("/orders/:id/rates", shippingHandler.GetOrderRates)
			admin.GET("/orders/:id/history", shippingHandler.GetOrderHistory)
			admin.GET("/orders/:id/labels", shippingHandler.GetOrderLabels)
			admin.GET("/orders/:id/shipping", shippingHandler.GetOrderShipping)

			admin.GET("/packaging-types", fulfillmentHandler.ListPackagingTypes)

			admin.POST("/fulfillment", fulfillmentHandler.StartFulfillment)
			admin.GET("/fulfillment/:orderId", fulfillmentHandler.GetProgress)
			admin.PUT("/fulfillment/:orderId", fulfillmentHandler.UpdateFulfillment)
			admin.POST("/fulfillment/:orderId/scans", fulfillmentHandler.RecordScan)
			admin.GET("/fulfillment/:orderId/scans/unassigned", fulfillmentHandler.ListUnassignedScans)
			admin.DELETE("/fulfillment/:orderId/scans/:scanId/package", fulfillmentHandler.DetachScan)
			admin.POST("/fulfillment/:orderId/packages", fulfillmentHandler.CreatePackage)
			admin.POST("/fulfillment/:orderId/packages/:packageId/scans", fulfillmentHandler.AssignScans)
		}
	}

	return router
}
