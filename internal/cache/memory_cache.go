package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/irfndi/celebrum-forecast/internal/models"
)

// MemoryForecastCache keeps forecasts in process memory. It backs the API
// when Redis is disabled.
type MemoryForecastCache struct {
	mu        sync.RWMutex
	forecasts map[string]*models.ForecastResult
}

var _ ForecastCache = (*MemoryForecastCache)(nil)

func NewMemoryForecastCache() *MemoryForecastCache {
	return &MemoryForecastCache{forecasts: make(map[string]*models.ForecastResult)}
}

func (c *MemoryForecastCache) Get(_ context.Context, instrument string) (*models.ForecastResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	forecast, ok := c.forecasts[instrument]
	return forecast, ok
}

func (c *MemoryForecastCache) Set(_ context.Context, forecast *models.ForecastResult) error {
	if forecast == nil || forecast.Instrument == "" {
		return fmt.Errorf("cannot cache a forecast without an instrument")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forecasts[forecast.Instrument] = forecast
	return nil
}

// List returns every cached forecast, ordered by instrument.
func (c *MemoryForecastCache) List(_ context.Context) ([]*models.ForecastResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	forecasts := make([]*models.ForecastResult, 0, len(c.forecasts))
	for _, forecast := range c.forecasts {
		forecasts = append(forecasts, forecast)
	}
	sort.Slice(forecasts, func(i, j int) bool {
		return forecasts[i].Instrument < forecasts[j].Instrument
	})
	return forecasts, nil
}
