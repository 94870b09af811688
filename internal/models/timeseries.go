package models

import (
	"sort"
	"time"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

// TimeSeriesPoint is a single (timestamp, value) observation.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// NewTimeSeriesPoint creates a point.
func NewTimeSeriesPoint(timestamp time.Time, value float64) TimeSeriesPoint {
	return TimeSeriesPoint{Timestamp: timestamp, Value: value}
}

// Before orders points by timestamp only.
func (p TimeSeriesPoint) Before(other TimeSeriesPoint) bool {
	return p.Timestamp.Before(other.Timestamp)
}

// Equal requires an exact timestamp and value match.
func (p TimeSeriesPoint) Equal(other TimeSeriesPoint) bool {
	return p.Timestamp.Equal(other.Timestamp) && p.Value == other.Value
}

// TimeSeries is an immutable sequence of points with strictly increasing timestamps.
// The zero value is an empty series.
type TimeSeries struct {
	points []TimeSeriesPoint
}

// NewTimeSeries validates ordering and copies points into a frozen series.
func NewTimeSeries(points []TimeSeriesPoint) (TimeSeries, error) {
	b := NewSeriesBuilder(len(points))
	for _, p := range points {
		if err := b.Append(p); err != nil {
			return TimeSeries{}, err
		}
	}
	return b.Build(), nil
}

// Len returns the number of points.
func (s TimeSeries) Len() int {
	return len(s.points)
}

// At returns the point at index i.
func (s TimeSeries) At(i int) TimeSeriesPoint {
	return s.points[i]
}

// Last returns the most recent point. ok is false for an empty series.
func (s TimeSeries) Last() (TimeSeriesPoint, bool) {
	if len(s.points) == 0 {
		return TimeSeriesPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// Points returns a copy of the underlying points.
func (s TimeSeries) Points() []TimeSeriesPoint {
	out := make([]TimeSeriesPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns the point values in order.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}

// Dates returns the point timestamps in order.
func (s TimeSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Timestamp
	}
	return out
}

// IndexOf returns the index of the point with exactly timestamp t, or -1.
func (s TimeSeries) IndexOf(t time.Time) int {
	i := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Timestamp.Before(t)
	})
	if i < len(s.points) && s.points[i].Timestamp.Equal(t) {
		return i
	}
	return -1
}

// Contains reports whether t is an exact timestamp of the series.
func (s TimeSeries) Contains(t time.Time) bool {
	return s.IndexOf(t) >= 0
}

// Slice returns the contiguous inclusive window [start, end]. Both bounds must be
// existing timestamps and end must not precede start.
func (s TimeSeries) Slice(start, end time.Time) (TimeSeries, error) {
	from := s.IndexOf(start)
	if from < 0 {
		return TimeSeries{}, utils.NewKindError(utils.InvalidWindow,
			"window start %s is not a timestamp of the series", start.Format(time.RFC3339))
	}
	to := s.IndexOf(end)
	if to < 0 {
		return TimeSeries{}, utils.NewKindError(utils.InvalidWindow,
			"window end %s is not a timestamp of the series", end.Format(time.RFC3339))
	}
	if to < from {
		return TimeSeries{}, utils.NewKindError(utils.InvalidWindow,
			"window end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	// Sub-slicing is safe: nothing writes to points after Build.
	return TimeSeries{points: s.points[from : to+1 : to+1]}, nil
}

// Equal compares two series point by point.
func (s TimeSeries) Equal(other TimeSeries) bool {
	if len(s.points) != len(other.points) {
		return false
	}
	for i := range s.points {
		if !s.points[i].Equal(other.points[i]) {
			return false
		}
	}
	return true
}

// AlignedWith reports whether both series carry exactly the same timestamps.
func (s TimeSeries) AlignedWith(other TimeSeries) bool {
	if len(s.points) != len(other.points) {
		return false
	}
	for i := range s.points {
		if !s.points[i].Timestamp.Equal(other.points[i].Timestamp) {
			return false
		}
	}
	return true
}

// SeriesBuilder accumulates points in order and freezes them into a TimeSeries.
type SeriesBuilder struct {
	points []TimeSeriesPoint
}

// NewSeriesBuilder creates a builder with room for capacity points.
func NewSeriesBuilder(capacity int) *SeriesBuilder {
	if capacity < 0 {
		capacity = 0
	}
	return &SeriesBuilder{points: make([]TimeSeriesPoint, 0, capacity)}
}

// Append adds p, rejecting a timestamp that is not after the last one.
func (b *SeriesBuilder) Append(p TimeSeriesPoint) error {
	if p.Timestamp.IsZero() {
		return utils.NewValidationError("point timestamp must be set")
	}
	if n := len(b.points); n > 0 && !b.points[n-1].Before(p) {
		return utils.NewValidationErrorf("point at %s is not after previous point at %s",
			p.Timestamp.Format(time.RFC3339), b.points[n-1].Timestamp.Format(time.RFC3339))
	}
	b.points = append(b.points, p)
	return nil
}

// Len returns the number of points appended so far.
func (b *SeriesBuilder) Len() int {
	return len(b.points)
}

// Build freezes the builder contents. The builder is reset and may be reused.
func (b *SeriesBuilder) Build() TimeSeries {
	frozen := b.points[:len(b.points):len(b.points)]
	b.points = nil
	return TimeSeries{points: frozen}
}
