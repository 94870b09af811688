package services

import (
	"math"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// WeightSumTolerance is how far the weights may sum from 1.
const WeightSumTolerance = 1e-6

// correlationTolerance bounds float noise in symmetry and diagonal checks.
const correlationTolerance = 1e-12

// DiversificationMultiplier rescales a weighted sum of correlated forecasts so
// the combined signal carries the risk of a single rule: 1 / sqrt(wᵗ C w).
type DiversificationMultiplier struct {
	weights      []float64
	correlations [][]float64
	value        float64
}

// NewDiversificationMultiplier validates weights and correlations and computes
// the multiplier. Inputs are copied.
func NewDiversificationMultiplier(weights []float64, correlations [][]float64) (*DiversificationMultiplier, error) {
	n := len(weights)
	if n == 0 {
		return nil, utils.NewValidationError("diversification multiplier: weights must not be empty")
	}
	if len(correlations) == 0 {
		return nil, utils.NewValidationError("diversification multiplier: correlations must not be empty")
	}
	if len(correlations) != n {
		return nil, utils.NewValidationErrorf("diversification multiplier: %d weights but %d correlation rows",
			n, len(correlations))
	}
	for i, row := range correlations {
		if len(row) != len(correlations) {
			return nil, utils.NewValidationErrorf("diversification multiplier: correlation row %d has %d columns, want %d",
				i, len(row), len(correlations))
		}
	}

	sum := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, utils.NewValidationErrorf("diversification multiplier: weight %d is not finite", i)
		}
		if w < 0 {
			return nil, utils.NewValidationErrorf("diversification multiplier: weight %d is negative (%v)", i, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > WeightSumTolerance {
		return nil, utils.NewValidationErrorf("diversification multiplier: weights sum to %v, want 1", sum)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := correlations[i][j]
			if math.IsNaN(c) || c < -1 || c > 1 {
				return nil, utils.NewValidationErrorf("diversification multiplier: correlation [%d][%d] = %v is outside [-1, 1]", i, j, c)
			}
			if i == j && math.Abs(c-1) > correlationTolerance {
				return nil, utils.NewValidationErrorf("diversification multiplier: diagonal entry [%d][%d] = %v, want 1", i, j, c)
			}
			if math.Abs(c-correlations[j][i]) > correlationTolerance {
				return nil, utils.NewValidationErrorf("diversification multiplier: correlation [%d][%d] = %v differs from [%d][%d] = %v",
					i, j, c, j, i, correlations[j][i])
			}
		}
	}

	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += weights[i] * weights[j] * correlations[i][j]
		}
	}
	if variance <= 0 {
		return nil, utils.NewValidationErrorf("diversification multiplier: combined variance %v is not positive", variance)
	}

	return &DiversificationMultiplier{
		weights:      copyWeights(weights),
		correlations: copyMatrix(correlations),
		value:        1 / math.Sqrt(variance),
	}, nil
}

// Value returns the multiplier.
func (dm *DiversificationMultiplier) Value() float64 {
	return dm.value
}

// Len returns the number of rules the multiplier covers.
func (dm *DiversificationMultiplier) Len() int {
	return len(dm.weights)
}

// Weights returns a copy of the weights.
func (dm *DiversificationMultiplier) Weights() []float64 {
	return copyWeights(dm.weights)
}

// Correlations returns a copy of the correlation matrix.
func (dm *DiversificationMultiplier) Correlations() [][]float64 {
	return copyMatrix(dm.correlations)
}

func copyWeights(weights []float64) []float64 {
	out := make([]float64, len(weights))
	copy(out, weights)
	return out
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		copy(out[i], row)
	}
	return out
}
