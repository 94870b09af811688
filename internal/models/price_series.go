package models

import (
	"math"
	"strings"
	"time"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// PriceSeries holds an instrument's price history together with a synthetic
// short series that moves inversely to it. Instances are immutable once built
// and safe for concurrent reads.
type PriceSeries struct {
	name    string
	primary TimeSeries
	short   TimeSeries
}

// NewPriceSeries builds a price series and derives its short series.
//
// The short series starts at the first primary value; every following value
// applies the negated primary return to the previous short value:
//
//	short[i] = short[i-1] * (1 - (p[i]-p[i-1])/p[i-1])
//
// floored at zero, after which it stays at zero. Deriving requires strictly
// positive primary values.
func NewPriceSeries(name string, points []TimeSeriesPoint) (*PriceSeries, error) {
	primary, err := NewTimeSeries(points)
	if err != nil {
		return nil, err
	}
	return NewPriceSeriesFromSeries(name, primary)
}

// NewPriceSeriesFromSeries is NewPriceSeries for an already frozen series.
func NewPriceSeriesFromSeries(name string, primary TimeSeries) (*PriceSeries, error) {
	if err := validatePrimary(name, primary); err != nil {
		return nil, err
	}
	for i := 0; i < primary.Len(); i++ {
		if p := primary.At(i); p.Value <= 0 {
			return nil, utils.NewValidationErrorf(
				"price series %q: cannot derive short series from non-positive value %v at %s",
				name, p.Value, p.Timestamp.Format(time.RFC3339))
		}
	}

	return &PriceSeries{
		name:    name,
		primary: primary,
		short:   deriveShortSeries(primary),
	}, nil
}

// NewPriceSeriesWithShort builds a price series from an explicit short series,
// which must match the primary series date for date.
func NewPriceSeriesWithShort(name string, points, shortPoints []TimeSeriesPoint) (*PriceSeries, error) {
	primary, err := NewTimeSeries(points)
	if err != nil {
		return nil, err
	}
	if err := validatePrimary(name, primary); err != nil {
		return nil, err
	}
	short, err := NewTimeSeries(shortPoints)
	if err != nil {
		return nil, err
	}
	if short.Len() != primary.Len() {
		return nil, utils.NewValidationErrorf("price series %q: short series has %d points, primary has %d",
			name, short.Len(), primary.Len())
	}
	for i := 0; i < short.Len(); i++ {
		sp, pp := short.At(i), primary.At(i)
		if !sp.Timestamp.Equal(pp.Timestamp) {
			return nil, utils.NewValidationErrorf("price series %q: short point %d at %s does not match primary date %s",
				name, i, sp.Timestamp.Format(time.RFC3339), pp.Timestamp.Format(time.RFC3339))
		}
		if math.IsNaN(sp.Value) || math.IsInf(sp.Value, 0) {
			return nil, utils.NewValidationErrorf("price series %q: short value at %s is not finite",
				name, sp.Timestamp.Format(time.RFC3339))
		}
	}

	return &PriceSeries{name: name, primary: primary, short: short}, nil
}

func validatePrimary(name string, primary TimeSeries) error {
	if strings.TrimSpace(name) == "" {
		return utils.NewValidationError("price series name must not be empty")
	}
	if primary.Len() == 0 {
		return utils.NewValidationErrorf("price series %q must contain at least one point", name)
	}
	for i := 0; i < primary.Len(); i++ {
		p := primary.At(i)
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return utils.NewValidationErrorf("price series %q: value at %s is not finite",
				name, p.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func deriveShortSeries(primary TimeSeries) TimeSeries {
	b := NewSeriesBuilder(primary.Len())
	first := primary.At(0)
	short := first.Value
	_ = b.Append(TimeSeriesPoint{Timestamp: first.Timestamp, Value: short})

	for i := 1; i < primary.Len(); i++ {
		prev, cur := primary.At(i-1), primary.At(i)
		ret := (cur.Value - prev.Value) / prev.Value
		short *= 1 - ret
		if short < 0 {
			short = 0
		}
		// Timestamps come from an already validated series.
		_ = b.Append(TimeSeriesPoint{Timestamp: cur.Timestamp, Value: short})
	}
	return b.Build()
}

// Name returns the instrument name.
func (ps *PriceSeries) Name() string {
	return ps.name
}

// Len returns the number of observations.
func (ps *PriceSeries) Len() int {
	return ps.primary.Len()
}

// Primary returns the price series.
func (ps *PriceSeries) Primary() TimeSeries {
	return ps.primary
}

// Short returns the short series.
func (ps *PriceSeries) Short() TimeSeries {
	return ps.short
}

// Points returns a copy of the primary points.
func (ps *PriceSeries) Points() []TimeSeriesPoint {
	return ps.primary.Points()
}

// ShortIndexValues returns a copy of the short series points.
func (ps *PriceSeries) ShortIndexValues() []TimeSeriesPoint {
	return ps.short.Points()
}

// Values returns the primary values in order.
func (ps *PriceSeries) Values() []float64 {
	return ps.primary.Values()
}

// Dates returns the primary timestamps in order.
func (ps *PriceSeries) Dates() []time.Time {
	return ps.primary.Dates()
}

// Contains reports whether t is an exact timestamp of the series.
func (ps *PriceSeries) Contains(t time.Time) bool {
	return ps.primary.Contains(t)
}

// Window returns the primary points in [start, end].
func (ps *PriceSeries) Window(start, end time.Time) (TimeSeries, error) {
	return ps.primary.Slice(start, end)
}

// ShortWindow returns the short series points in [start, end].
func (ps *PriceSeries) ShortWindow(start, end time.Time) (TimeSeries, error) {
	return ps.short.Slice(start, end)
}

// Equal compares by content: name, primary and short points.
func (ps *PriceSeries) Equal(other *PriceSeries) bool {
	if ps == nil || other == nil {
		return ps == other
	}
	return ps.name == other.name &&
		ps.primary.Equal(other.primary) &&
		ps.short.Equal(other.short)
}
