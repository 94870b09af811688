package services

import (
	"math"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

const (
	// DefaultForecastBaseScale is the target average absolute forecast.
	DefaultForecastBaseScale = 10.0
	// DefaultForecastCap bounds scaled and combined forecasts.
	DefaultForecastCap = 20.0
)

// Average returns the arithmetic mean of values.
func Average(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, utils.NewKindError(utils.EmptyInput, "cannot average an empty set of values")
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// PercentageReturn returns (latter - former) / former.
func PercentageReturn(former, latter float64) (float64, error) {
	if former == 0 {
		return 0, utils.NewKindError(utils.DivisionByZero, "cannot compute return from a former value of 0 (latter %v)", latter)
	}
	return (latter - former) / former, nil
}

// AdjustForStandardDeviation expresses value in units of sd.
func AdjustForStandardDeviation(value, sd float64) (float64, error) {
	if sd == 0 {
		return 0, utils.NewKindError(utils.DivisionByZero, "cannot adjust %v for a standard deviation of 0", value)
	}
	return value / sd, nil
}

// ForecastScalar returns the factor that brings the average absolute value of
// values to baseScale.
func ForecastScalar(values []float64, baseScale float64) (float64, error) {
	if len(values) == 0 {
		return 0, utils.NewKindError(utils.EmptyInput, "cannot compute a forecast scalar from no forecasts")
	}
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	avg, err := Average(abs)
	if err != nil {
		return 0, err
	}
	if avg == 0 {
		return 0, utils.NewKindError(utils.DivisionByZero, "cannot compute a forecast scalar: all %d forecasts are 0", len(values))
	}
	return baseScale / avg, nil
}

// ScaleForecast multiplies an unscaled forecast by its scalar. A zero scalar is
// treated as a configuration error.
func ScaleForecast(unscaled, scalar float64) (float64, error) {
	if scalar == 0 {
		return 0, utils.NewKindError(utils.DivisionByZero, "forecast scalar must not be 0")
	}
	return unscaled * scalar, nil
}

// CapForecast clamps value to [-limit, limit].
func CapForecast(value, limit float64) float64 {
	if value > limit {
		return limit
	}
	if value < -limit {
		return -limit
	}
	return value
}

// SampleStdDev returns the sample (n-1) standard deviation of values.
func SampleStdDev(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, utils.NewValidationErrorf("sample standard deviation needs at least 2 values, got %d", len(values))
	}
	mean, err := Average(values)
	if err != nil {
		return 0, err
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1)), nil
}

// averageDefined averages the non-NaN entries of values and reports how many were used.
func averageDefined(values []float64) (float64, int) {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}
