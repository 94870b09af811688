package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastDecimalPlaces is the precision forecasts are stored and served with.
const ForecastDecimalPlaces = 6

// RuleForecast is one rule's contribution to a combined forecast
type RuleForecast struct {
	Rule   string          `json:"rule" db:"rule"`
	Raw    decimal.Decimal `json:"raw" db:"raw"`
	Scalar decimal.Decimal `json:"scalar" db:"scalar"`
	Scaled decimal.Decimal `json:"scaled" db:"scaled"`
	Weight decimal.Decimal `json:"weight" db:"weight"`
}

// ForecastResult is the combined forecast for an instrument at a point in time
type ForecastResult struct {
	ID                        string          `json:"id" db:"id"`
	Instrument                string          `json:"instrument" db:"instrument"`
	AsOf                      time.Time       `json:"as_of" db:"as_of"`
	LastPrice                 decimal.Decimal `json:"last_price" db:"last_price"`
	Rules                     []RuleForecast  `json:"rules" db:"rules"`
	DiversificationMultiplier decimal.Decimal `json:"diversification_multiplier" db:"diversification_multiplier"`
	Combined                  decimal.Decimal `json:"combined" db:"combined"`
	CalculatedAt              time.Time       `json:"calculated_at" db:"calculated_at"`
}

// RoundForecast converts a float forecast to its stored decimal form. value
// must be finite.
func RoundForecast(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(ForecastDecimalPlaces)
}
