package services

import (
	"github.com/irfndi/celebrum-forecast/internal/models"
)

// ForecastRule is a trading rule that turns a price series into a raw,
// unscaled forecast.
type ForecastRule interface {
	// Name identifies the rule variant and its parameters, e.g. "ewmac_16_64".
	Name() string
	// RawForecast is the rule's forecast at the latest observation.
	RawForecast() (float64, error)
	// RawForecastHistory is the raw forecast at every timestamp where the rule is defined.
	RawForecastHistory() ([]models.TimeSeriesPoint, error)
}

var (
	_ ForecastRule = (*EWMAC)(nil)
	_ ForecastRule = (*VolatilityDifferentialRule)(nil)
)

// EstimateForecastScalar derives a rule's forecast scalar from its raw history.
func EstimateForecastScalar(rule ForecastRule, baseScale float64) (float64, error) {
	history, err := rule.RawForecastHistory()
	if err != nil {
		return 0, err
	}
	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Value
	}
	return ForecastScalar(values, baseScale)
}
