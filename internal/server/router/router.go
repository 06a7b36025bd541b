package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.DeliveryHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	tenant := r.Group("/tenants/:tenantId")
	tenant.POST("/purchase-orders/:orderId/deliveries", handler.Deliver)
	tenant.POST("/locations/:locationId/inventory", handler.AddMissingItem)
	tenant.POST("/locations/:locationId/inventory/unit-resolutions", handler.ResolveUnitMismatch)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("tenant", c.Param("tenantId")),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
