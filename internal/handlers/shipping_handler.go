package handlers

import (
	"io"
	"net/http"

	"order_fulfillment/internal/services"
	apperrors "order_fulfillment/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signatureHeader    = "X-ShipStation-Signature"
	maxWebhookBodySize = 1 << 20
)

type ShippingHandler struct {
	rateService    services.RateService
	webhookService services.WebhookService
	orderService   services.OrderService
	log            *zap.Logger
}

func NewShippingHandler(
	rateService services.RateService,
	webhookService services.WebhookService,
	orderService services.OrderService,
	log *zap.Logger,
) *ShippingHandler {
	return &ShippingHandler{
		rateService:    rateService,
		webhookService: webhookService,
		orderService:   orderService,
		log:            log,
	}
}

func (h *ShippingHandler) GetRates(c *gin.Context) {
	var req services.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.rateService.GetRates(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ShippingHandler) GetOrderRates(c *gin.Context) {
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.rateService.QuoteOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ShippingHandler) GetOrderHistory(c *gin.Context) {
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	history, err := h.orderService.GetStatusHistory(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *ShippingHandler) GetOrderLabels(c *gin.Context) {
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	labels, err := h.orderService.GetShippingLabels(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

func (h *ShippingHandler) GetOrderShipping(c *gin.Context) {
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.orderService.GetShippingSummary(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleWebhook answers 401 for bad signatures and 500 only when state could not be
// persisted, so the carrier retries. Everything else is acknowledged with 200.
func (h *ShippingHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		h.log.Warn("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "status": services.WebhookIgnored})
		return
	}

	result, err := h.webhookService.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		h.log.Error("Webhook processing failed", zap.String("request_id", c.GetString(RequestIDKey)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"status":    result.Status,
		"message":   result.Message,
		"shipments": result.Shipments,
	})
}
