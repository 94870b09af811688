package services

import (
	"fmt"
	"math"
	"time"

	"github.com/irfndi/celebrum-forecast/internal/models"
	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// VolatilityDifferentialRule forecasts from the gap between a series' average
// volatility over a reference window and its current volatility. A calm market
// relative to its reference period yields a positive forecast.
type VolatilityDifferentialRule struct {
	series                 *models.PriceSeries
	startOfReferenceWindow time.Time
	endOfReferenceWindow   time.Time
	lookbackWindow         int
	volatilityIndex        models.TimeSeries
	averageVolatility      float64
}

// NewVolatilityDifferentialRule validates its inputs and computes the volatility
// index and the reference-window average once.
//
// volatilityIndex may be nil, in which case it is computed from the primary
// series: the sample standard deviation of the trailing lookbackWindow values
// ending at each point, NaN where fewer values are available. A supplied index
// must match the series date for date.
func NewVolatilityDifferentialRule(
	series *models.PriceSeries,
	volatilityIndex []models.TimeSeriesPoint,
	startOfReferenceWindow time.Time,
	endOfReferenceWindow time.Time,
	lookbackWindow int,
) (*VolatilityDifferentialRule, error) {
	if series == nil {
		return nil, utils.NewValidationError("volatility differential: price series must not be nil")
	}
	if startOfReferenceWindow.IsZero() {
		return nil, utils.NewValidationError("volatility differential: start of reference window must be set")
	}
	if endOfReferenceWindow.IsZero() {
		return nil, utils.NewValidationError("volatility differential: end of reference window must be set")
	}
	if !endOfReferenceWindow.After(startOfReferenceWindow) {
		return nil, utils.NewValidationErrorf("volatility differential: end of reference window %s must be after start %s",
			endOfReferenceWindow.Format(time.RFC3339), startOfReferenceWindow.Format(time.RFC3339))
	}
	if lookbackWindow < MinHorizon {
		return nil, utils.NewValidationErrorf("volatility differential: lookback window must be at least %d, got %d",
			MinHorizon, lookbackWindow)
	}
	if !series.Contains(startOfReferenceWindow) {
		return nil, utils.NewValidationErrorf("volatility differential: start of reference window %s is not a timestamp of %q",
			startOfReferenceWindow.Format(time.RFC3339), series.Name())
	}
	if !series.Contains(endOfReferenceWindow) {
		return nil, utils.NewValidationErrorf("volatility differential: end of reference window %s is not a timestamp of %q",
			endOfReferenceWindow.Format(time.RFC3339), series.Name())
	}

	var index models.TimeSeries
	var err error
	if volatilityIndex == nil {
		index, err = computeVolatilityIndex(series.Primary(), lookbackWindow)
	} else {
		index, err = alignedVolatilityIndex(series, volatilityIndex)
	}
	if err != nil {
		return nil, err
	}

	window, err := index.Slice(startOfReferenceWindow, endOfReferenceWindow)
	if err != nil {
		return nil, utils.NewValidationErrorf("volatility differential: %v", err)
	}
	average, n := averageDefined(window.Values())
	if n == 0 {
		return nil, utils.NewValidationErrorf("volatility differential: no volatility values between %s and %s with lookback %d",
			startOfReferenceWindow.Format(time.RFC3339), endOfReferenceWindow.Format(time.RFC3339), lookbackWindow)
	}

	return &VolatilityDifferentialRule{
		series:                 series,
		startOfReferenceWindow: startOfReferenceWindow,
		endOfReferenceWindow:   endOfReferenceWindow,
		lookbackWindow:         lookbackWindow,
		volatilityIndex:        index,
		averageVolatility:      average,
	}, nil
}

func computeVolatilityIndex(primary models.TimeSeries, lookback int) (models.TimeSeries, error) {
	values := primary.Values()
	b := models.NewSeriesBuilder(len(values))
	for i := range values {
		vol := math.NaN()
		if i >= lookback-1 {
			sd, err := SampleStdDev(values[i-lookback+1 : i+1])
			if err != nil {
				return models.TimeSeries{}, err
			}
			vol = sd
		}
		if err := b.Append(models.NewTimeSeriesPoint(primary.At(i).Timestamp, vol)); err != nil {
			return models.TimeSeries{}, err
		}
	}
	return b.Build(), nil
}

func alignedVolatilityIndex(series *models.PriceSeries, points []models.TimeSeriesPoint) (models.TimeSeries, error) {
	index, err := models.NewTimeSeries(points)
	if err != nil {
		return models.TimeSeries{}, err
	}
	if !index.AlignedWith(series.Primary()) {
		return models.TimeSeries{}, utils.NewValidationErrorf(
			"volatility differential: supplied volatility index (%d points) does not match the dates of %q (%d points)",
			index.Len(), series.Name(), series.Len())
	}
	return index, nil
}

// Name implements ForecastRule.
func (r *VolatilityDifferentialRule) Name() string {
	return fmt.Sprintf("voldiff_%d", r.lookbackWindow)
}

// LookbackWindow returns the number of trailing values per volatility estimate.
func (r *VolatilityDifferentialRule) LookbackWindow() int {
	return r.lookbackWindow
}

// ReferenceWindow returns the bounds used for the average volatility.
func (r *VolatilityDifferentialRule) ReferenceWindow() (start, end time.Time) {
	return r.startOfReferenceWindow, r.endOfReferenceWindow
}

// VolatilityIndices returns a copy of the volatility index, one value per series timestamp.
func (r *VolatilityDifferentialRule) VolatilityIndices() []models.TimeSeriesPoint {
	return r.volatilityIndex.Points()
}

// AverageVolatility returns the mean volatility over the reference window,
// ignoring undefined values.
func (r *VolatilityDifferentialRule) AverageVolatility() float64 {
	return r.averageVolatility
}

// CalculateRawForecast returns averageVolatility - currentVolatility.
func (r *VolatilityDifferentialRule) CalculateRawForecast(currentVolatility float64) float64 {
	return r.averageVolatility - currentVolatility
}

// CurrentVolatility returns the latest volatility index value.
func (r *VolatilityDifferentialRule) CurrentVolatility() (float64, error) {
	last, ok := r.volatilityIndex.Last()
	if !ok || math.IsNaN(last.Value) {
		return 0, utils.NewValidationErrorf("volatility differential: no current volatility for %q with lookback %d",
			r.series.Name(), r.lookbackWindow)
	}
	return last.Value, nil
}

// RawForecast implements ForecastRule using the latest volatility index value.
func (r *VolatilityDifferentialRule) RawForecast() (float64, error) {
	current, err := r.CurrentVolatility()
	if err != nil {
		return 0, err
	}
	return r.CalculateRawForecast(current), nil
}

// RawForecastHistory implements ForecastRule for every defined volatility value.
func (r *VolatilityDifferentialRule) RawForecastHistory() ([]models.TimeSeriesPoint, error) {
	history := make([]models.TimeSeriesPoint, 0, r.volatilityIndex.Len())
	for i := 0; i < r.volatilityIndex.Len(); i++ {
		p := r.volatilityIndex.At(i)
		if math.IsNaN(p.Value) {
			continue
		}
		history = append(history, models.NewTimeSeriesPoint(p.Timestamp, r.CalculateRawForecast(p.Value)))
	}
	if len(history) == 0 {
		return nil, utils.NewKindError(utils.EmptyInput, "volatility differential %s: no forecast history", r.Name())
	}
	return history, nil
}
