package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
)

// ForecastCacheEntry is a cached forecast with metadata
type ForecastCacheEntry struct {
	Forecast  *models.ForecastResult `json:"forecast"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// ForecastCacheStats tracks cache performance metrics
type ForecastCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// ForecastCache stores the latest forecast per instrument.
type ForecastCache interface {
	Get(ctx context.Context, instrument string) (*models.ForecastResult, bool)
	Set(ctx context.Context, forecast *models.ForecastResult) error
	List(ctx context.Context) ([]*models.ForecastResult, error)
}

// RedisForecastCache implements ForecastCache using Redis
type RedisForecastCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ForecastCacheStats
	prefix string
	logger *logrus.Logger
}

var _ ForecastCache = (*RedisForecastCache)(nil)

// NewRedisForecastCache creates a new Redis-based forecast cache
func NewRedisForecastCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisForecastCache {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &RedisForecastCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ForecastCacheStats{},
		prefix: "forecast:",
		logger: logger,
	}
}

func (c *RedisForecastCache) key(instrument string) string {
	return c.prefix + instrument
}

func (c *RedisForecastCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}

// Get retrieves the latest forecast for an instrument
func (c *RedisForecastCache) Get(ctx context.Context, instrument string) (*models.ForecastResult, bool) {
	start := time.Now()
	cacheKey := c.key(instrument)

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		c.miss()
		logging.LogCacheOperation(c.logger, "get", cacheKey, false, time.Since(start).Milliseconds())
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error getting forecast")
		c.miss()
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.Forecast == nil {
		c.logger.WithField("key", cacheKey).Warn("Discarding undecodable cached forecast")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	logging.LogCacheOperation(c.logger, "get", cacheKey, true, time.Since(start).Milliseconds())

	return entry.Forecast, true
}

// Set stores a forecast under its instrument
func (c *RedisForecastCache) Set(ctx context.Context, forecast *models.ForecastResult) error {
	if forecast == nil || forecast.Instrument == "" {
		return fmt.Errorf("cannot cache a forecast without an instrument")
	}
	cacheKey := c.key(forecast.Instrument)

	now := time.Now()
	entry := ForecastCacheEntry{
		Forecast:  forecast,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error serializing forecast for %s: %w", forecast.Instrument, err)
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error caching forecast for %s: %w", forecast.Instrument, err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"instrument": forecast.Instrument,
		"ttl":        c.ttl.String(),
	}).Debug("Cached forecast")
	return nil
}

// List returns every cached forecast, ordered by instrument.
func (c *RedisForecastCache) List(ctx context.Context) ([]*models.ForecastResult, error) {
	instruments, err := c.CachedInstruments(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(instruments)

	forecasts := make([]*models.ForecastResult, 0, len(instruments))
	for _, instrument := range instruments {
		if forecast, ok := c.Get(ctx, instrument); ok {
			forecasts = append(forecasts, forecast)
		}
	}
	return forecasts, nil
}

func (c *RedisForecastCache) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cache keys: %w", err)
	}
	return keys, nil
}

// CachedInstruments returns the instruments that have a cached forecast
func (c *RedisForecastCache) CachedInstruments(ctx context.Context) ([]string, error) {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	var instruments []string
	prefixLen := len(c.prefix)
	for _, key := range keys {
		if len(key) > prefixLen {
			instruments = append(instruments, key[prefixLen:])
		}
	}
	return instruments, nil
}

// Clear removes all cached forecasts
func (c *RedisForecastCache) Clear(ctx context.Context) error {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("entries", len(keys)).Info("Cleared forecast cache")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisForecastCache) GetStats() ForecastCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ForecastCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

// LogStats logs current cache performance statistics
func (c *RedisForecastCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Forecast cache stats")
}
