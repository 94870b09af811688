package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/celebrum-forecast/internal/api/handlers"
)

// SetupRoutes registers the health and forecast endpoints. Requests are traced
// under serviceName.
func SetupRoutes(router *gin.Engine, serviceName string, health *handlers.HealthHandler, forecasts *handlers.ForecastHandler) {
	router.Use(otelgin.Middleware(serviceName))

	// Health check endpoint
	router.GET("/health", health.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		forecastRoutes := v1.Group("/forecasts")
		{
			forecastRoutes.GET("", forecasts.ListForecasts)
			forecastRoutes.GET("/:instrument", forecasts.GetForecast)
		}
	}
}
