package services

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/irfndi/celebrum-forecast/internal/models"
	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// MinHorizon is the smallest usable moving-average span or lookback window.
const MinHorizon = 2

// EWMAC is the exponentially weighted moving average crossover trend rule.
// The raw forecast is the fast average minus the slow average.
type EWMAC struct {
	series       *models.PriceSeries
	shortHorizon int
	longHorizon  int

	// Averages are aligned with the primary series: index i holds the value at
	// series index i + horizon - 1.
	shortAverages []float64
	longAverages  []float64
}

// NewEWMAC builds a crossover rule over series. Both horizons must be at least
// MinHorizon, shortHorizon must be below longHorizon, and the series must hold
// at least longHorizon observations.
func NewEWMAC(series *models.PriceSeries, shortHorizon, longHorizon int) (*EWMAC, error) {
	if series == nil {
		return nil, utils.NewValidationError("ewmac: price series must not be nil")
	}
	if shortHorizon < MinHorizon || longHorizon < MinHorizon {
		return nil, utils.NewValidationErrorf("ewmac: horizons must be at least %d, got short=%d long=%d",
			MinHorizon, shortHorizon, longHorizon)
	}
	if shortHorizon >= longHorizon {
		return nil, utils.NewValidationErrorf("ewmac: short horizon %d must be below long horizon %d",
			shortHorizon, longHorizon)
	}
	if series.Len() < longHorizon {
		return nil, utils.NewValidationErrorf("ewmac: series %q has %d points, long horizon %d needs at least %d",
			series.Name(), series.Len(), longHorizon, longHorizon)
	}

	prices := series.Values()
	return &EWMAC{
		series:        series,
		shortHorizon:  shortHorizon,
		longHorizon:   longHorizon,
		shortAverages: exponentialAverage(prices, shortHorizon),
		longAverages:  exponentialAverage(prices, longHorizon),
	}, nil
}

func exponentialAverage(prices []float64, period int) []float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(prices)))
}

// Name implements ForecastRule.
func (e *EWMAC) Name() string {
	return fmt.Sprintf("ewmac_%d_%d", e.shortHorizon, e.longHorizon)
}

// ShortHorizon returns the fast moving-average span.
func (e *EWMAC) ShortHorizon() int {
	return e.shortHorizon
}

// LongHorizon returns the slow moving-average span.
func (e *EWMAC) LongHorizon() int {
	return e.longHorizon
}

// CalculateRawForecast returns shortHorizonForecast - longHorizonForecast.
func (e *EWMAC) CalculateRawForecast(shortHorizonForecast, longHorizonForecast float64) float64 {
	return shortHorizonForecast - longHorizonForecast
}

// MovingAverages returns the fast and slow averages at the latest observation.
func (e *EWMAC) MovingAverages() (short, long float64, err error) {
	if len(e.shortAverages) == 0 || len(e.longAverages) == 0 {
		return 0, 0, utils.NewKindError(utils.EmptyInput, "ewmac %s: no moving average values", e.Name())
	}
	return e.shortAverages[len(e.shortAverages)-1], e.longAverages[len(e.longAverages)-1], nil
}

// RawForecast implements ForecastRule.
func (e *EWMAC) RawForecast() (float64, error) {
	short, long, err := e.MovingAverages()
	if err != nil {
		return 0, err
	}
	return e.CalculateRawForecast(short, long), nil
}

// RawForecastHistory implements ForecastRule. It starts at the first timestamp
// for which the slow average is defined.
func (e *EWMAC) RawForecastHistory() ([]models.TimeSeriesPoint, error) {
	primary := e.series.Primary()
	history := make([]models.TimeSeriesPoint, 0, len(e.longAverages))
	offset := e.longHorizon - e.shortHorizon
	for j, long := range e.longAverages {
		k := j + offset
		if k >= len(e.shortAverages) {
			break
		}
		ts := primary.At(j + e.longHorizon - 1).Timestamp
		history = append(history, models.NewTimeSeriesPoint(ts, e.CalculateRawForecast(e.shortAverages[k], long)))
	}
	if len(history) == 0 {
		return nil, utils.NewKindError(utils.EmptyInput, "ewmac %s: no forecast history", e.Name())
	}
	return history, nil
}
