package handlers

import (
	"net/http"

	"order_fulfillment/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FulfillmentHandler struct {
	fulfillmentService services.FulfillmentService
	log                *zap.Logger
}

func NewFulfillmentHandler(fulfillmentService services.FulfillmentService, log *zap.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{fulfillmentService: fulfillmentService, log: log}
}

func (h *FulfillmentHandler) GetProgress(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}

	progress, err := h.fulfillmentService.GetProgress(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *FulfillmentHandler) StartFulfillment(c *gin.Context) {
	var req services.StartFulfillmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if user, ok := currentUser(c); ok && req.UserName == "" {
		req.UserName = user.Username
	}

	fulfillment, created, err := h.fulfillmentService.StartFulfillment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"fulfillment": fulfillment, "created": created})
}

func (h *FulfillmentHandler) UpdateFulfillment(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	var req services.UpdateFulfillmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if user, ok := currentUser(c); ok && req.UserName == "" {
		req.UserName = user.Username
	}

	fulfillment, err := h.fulfillmentService.UpdateFulfillment(c.Request.Context(), orderID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fulfillment": fulfillment})
}

func (h *FulfillmentHandler) RecordScan(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	var req services.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if user, ok := currentUser(c); ok && req.ScannedBy == "" {
		req.ScannedBy = user.Username
	}

	result, err := h.fulfillmentService.RecordScan(c.Request.Context(), orderID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FulfillmentHandler) ListUnassignedScans(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}

	scans, err := h.fulfillmentService.ListUnassignedScans(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *FulfillmentHandler) CreatePackage(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	var req services.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	pkg, err := h.fulfillmentService.CreatePackage(c.Request.Context(), orderID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"package": pkg})
}

func (h *FulfillmentHandler) AssignScans(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	packageID, ok := uintParam(c, "packageId")
	if !ok {
		return
	}
	var req struct {
		ScanIDs []uint `json:"scanIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	pkg, err := h.fulfillmentService.AssignScans(c.Request.Context(), orderID, packageID, req.ScanIDs)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg})
}

func (h *FulfillmentHandler) DetachScan(c *gin.Context) {
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	scanID, ok := uintParam(c, "scanId")
	if !ok {
		return
	}

	if err := h.fulfillmentService.DetachScan(c.Request.Context(), orderID, scanID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scan removed from package"})
}

func (h *FulfillmentHandler) ListPackagingTypes(c *gin.Context) {
	types, err := h.fulfillmentService.ListPackagingTypes(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packagingTypes": types})
}
