package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handlers *Handlers) {
	v1 := r.Group("/api")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.HEAD("/health", handlers.HealthCheck)

		v1.GET("/status", handlers.GetStatus)
		v1.POST("/check", handlers.TriggerCheck)
		v1.POST("/monitoring", handlers.SetMonitoring)
		v1.PATCH("/settings", handlers.UpdateSettings)
		v1.POST("/test-alert", handlers.TriggerTestAlert)
	}
}
