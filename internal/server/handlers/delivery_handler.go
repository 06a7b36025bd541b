package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/service/delivery"
)

// DeliveryService describes the operations the HTTP layer can perform.
type DeliveryService interface {
	DeliverPurchaseOrder(ctx context.Context, req models.DeliveryRequest) (models.DeliveryResult, error)
	ResolveUnitMismatch(ctx context.Context, in models.ResolveUnitMismatchInput) (models.ResolveResult, error)
	AddMissingInventoryItem(ctx context.Context, in models.AddMissingItemInput) (string, error)
}

// DeliveryHandler exposes delivery reconciliation over HTTP.
type DeliveryHandler struct {
	svc    DeliveryService
	logger *zap.Logger
}

// NewDeliveryHandler constructs the HTTP handler adapter.
func NewDeliveryHandler(svc DeliveryService, logger *zap.Logger) *DeliveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryHandler{svc: svc, logger: logger}
}

// Deliver records goods received against a purchase order.
func (h *DeliveryHandler) Deliver(c *gin.Context) {
	var req models.DeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid delivery payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.DeliveryResult{Success: false, Error: "invalid request body"})
		return
	}
	req.TenantID = c.Param("tenantId")
	req.OrderID = c.Param("orderId")

	res, err := h.svc.DeliverPurchaseOrder(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResolveUnitMismatch relabels an inventory item's unit.
func (h *DeliveryHandler) ResolveUnitMismatch(c *gin.Context) {
	var in models.ResolveUnitMismatchInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid unit resolution payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ResolveResult{Message: "invalid request body"})
		return
	}
	in.TenantID = c.Param("tenantId")
	in.LocationID = c.Param("locationId")

	res, err := h.svc.ResolveUnitMismatch(c.Request.Context(), in)
	if err != nil {
		c.JSON(statusFor(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AddMissingItem creates an inventory item for an unmatched delivery line.
func (h *DeliveryHandler) AddMissingItem(c *gin.Context) {
	var in models.AddMissingItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid inventory item payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in.TenantID = c.Param("tenantId")
	in.LocationID = c.Param("locationId")

	id, err := h.svc.AddMissingInventoryItem(c.Request.Context(), in)
	if err != nil {
		body := gin.H{"error": delivery.UserMessage(err)}
		if errors.Is(err, models.ErrConflict) && id != "" {
			body["itemId"] = id
		}
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"itemId": id})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
