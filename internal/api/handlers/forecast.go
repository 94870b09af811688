package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-forecast/internal/cache"
	"github.com/irfndi/celebrum-forecast/internal/database"
	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
)

// ForecastStore is the persistent source of forecasts.
type ForecastStore interface {
	Latest(ctx context.Context, instrument string) (*models.ForecastResult, error)
	ListLatest(ctx context.Context) ([]*models.ForecastResult, error)
}

// ForecastHandler serves computed forecasts, reading the cache before the store.
type ForecastHandler struct {
	cache  cache.ForecastCache
	store  ForecastStore
	logger *logrus.Logger
}

// ForecastListResponse wraps a list of forecasts.
type ForecastListResponse struct {
	Forecasts []*models.ForecastResult `json:"forecasts"`
	Count     int                      `json:"count"`
	Source    string                   `json:"source"`
}

// NewForecastHandler creates a handler. Either cache or store may be nil.
func NewForecastHandler(forecastCache cache.ForecastCache, store ForecastStore, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ForecastHandler{
		cache:  forecastCache,
		store:  store,
		logger: logger,
	}
}

// GetForecast handles GET /api/v1/forecasts/:instrument.
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	instrument := c.Param("instrument")
	ctx := c.Request.Context()

	if h.cache != nil {
		if forecast, ok := h.cache.Get(ctx, instrument); ok {
			c.JSON(http.StatusOK, forecast)
			return
		}
	}

	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "forecast not found", "instrument": instrument})
		return
	}

	forecast, err := h.store.Latest(ctx, instrument)
	if err != nil {
		if errors.Is(err, database.ErrForecastNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "forecast not found", "instrument": instrument})
			return
		}
		logging.WithInstrument(h.logger, instrument).WithError(err).Error("Failed to load forecast")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load forecast"})
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, forecast); err != nil {
			logging.WithInstrument(h.logger, instrument).WithError(err).Warn("Failed to cache forecast")
		}
	}
	c.JSON(http.StatusOK, forecast)
}

// ListForecasts handles GET /api/v1/forecasts.
func (h *ForecastHandler) ListForecasts(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		forecasts, err := h.cache.List(ctx)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to list cached forecasts")
		} else if len(forecasts) > 0 || h.store == nil {
			c.JSON(http.StatusOK, listResponse(forecasts, "cache"))
			return
		}
	}

	if h.store == nil {
		c.JSON(http.StatusOK, listResponse(nil, "none"))
		return
	}

	forecasts, err := h.store.ListLatest(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list forecasts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list forecasts"})
		return
	}
	c.JSON(http.StatusOK, listResponse(forecasts, "database"))
}

func listResponse(forecasts []*models.ForecastResult, source string) ForecastListResponse {
	if forecasts == nil {
		forecasts = []*models.ForecastResult{}
	}
	return ForecastListResponse{
		Forecasts: forecasts,
		Count:     len(forecasts),
		Source:    source,
	}
}
