package services

import (
	"fmt"
	"math"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// RuleContribution is one rule's part of a combined forecast.
type RuleContribution struct {
	Rule   string
	Raw    float64
	Scalar float64
	Scaled float64
	Weight float64
}

// CombinedForecast is the output of ForecastCombiner.Combine.
type CombinedForecast struct {
	Contributions []RuleContribution
	Multiplier    float64
	Value         float64
}

// ForecastCombiner blends several rules' forecasts into one signal:
//
//	combined = cap(DM * Σ w_i * cap(raw_i * scalar_i))
type ForecastCombiner struct {
	rules      []ForecastRule
	scalars    []float64
	multiplier *DiversificationMultiplier
	limit      float64
}

// NewForecastCombiner validates that one scalar and one multiplier weight exist per rule.
func NewForecastCombiner(rules []ForecastRule, scalars []float64, multiplier *DiversificationMultiplier, limit float64) (*ForecastCombiner, error) {
	if len(rules) == 0 {
		return nil, utils.NewValidationError("forecast combiner: at least one rule is required")
	}
	if multiplier == nil {
		return nil, utils.NewValidationError("forecast combiner: diversification multiplier must not be nil")
	}
	if multiplier.Len() != len(rules) {
		return nil, utils.NewValidationErrorf("forecast combiner: %d rules but multiplier covers %d", len(rules), multiplier.Len())
	}
	if len(scalars) != len(rules) {
		return nil, utils.NewValidationErrorf("forecast combiner: %d rules but %d scalars", len(rules), len(scalars))
	}
	for i, rule := range rules {
		if rule == nil {
			return nil, utils.NewValidationErrorf("forecast combiner: rule %d is nil", i)
		}
	}
	if !(limit > 0) || math.IsInf(limit, 0) {
		return nil, utils.NewValidationErrorf("forecast combiner: forecast cap must be positive, got %v", limit)
	}

	return &ForecastCombiner{
		rules:      append([]ForecastRule(nil), rules...),
		scalars:    copyWeights(scalars),
		multiplier: multiplier,
		limit:      limit,
	}, nil
}

// Combine evaluates every rule at its latest observation.
func (c *ForecastCombiner) Combine() (*CombinedForecast, error) {
	weights := c.multiplier.Weights()
	result := &CombinedForecast{
		Contributions: make([]RuleContribution, 0, len(c.rules)),
		Multiplier:    c.multiplier.Value(),
	}

	sum := 0.0
	for i, rule := range c.rules {
		raw, err := rule.RawForecast()
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		if err := requireFinite(rule.Name()+" raw forecast", raw); err != nil {
			return nil, err
		}
		scaled, err := ScaleForecast(raw, c.scalars[i])
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		scaled = CapForecast(scaled, c.limit)
		if err := requireFinite(rule.Name()+" scaled forecast", scaled); err != nil {
			return nil, err
		}
		sum += weights[i] * scaled

		result.Contributions = append(result.Contributions, RuleContribution{
			Rule:   rule.Name(),
			Raw:    raw,
			Scalar: c.scalars[i],
			Scaled: scaled,
			Weight: weights[i],
		})
	}

	result.Value = CapForecast(sum*result.Multiplier, c.limit)
	if err := requireFinite("combined forecast", result.Value); err != nil {
		return nil, err
	}
	return result, nil
}

// requireFinite rejects NaN and infinite values, which cannot be stored as decimals.
func requireFinite(what string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return utils.NewValidationErrorf("%s is not a finite number: %v", what, value)
	}
	return nil
}
