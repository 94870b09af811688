package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-forecast/internal/utils"
)

func day(d int) time.Time {
	return time.Date(2016, time.January, d, 0, 0, 0, 0, time.UTC)
}

func testPoints(values ...float64) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, len(values))
	for i, v := range values {
		points[i] = NewTimeSeriesPoint(day(i+1), v)
	}
	return points
}

func TestTimeSeriesPoint_Equal(t *testing.T) {
	p := NewTimeSeriesPoint(day(1), 100)

	assert.True(t, p.Equal(NewTimeSeriesPoint(day(1), 100)))
	assert.False(t, p.Equal(NewTimeSeriesPoint(day(1), 100.0000001)))
	assert.False(t, p.Equal(NewTimeSeriesPoint(day(2), 100)))
	assert.True(t, p.Before(NewTimeSeriesPoint(day(2), 1)))
	assert.False(t, p.Before(NewTimeSeriesPoint(day(1), 1)))
}

func TestSeriesBuilder_Append(t *testing.T) {
	b := NewSeriesBuilder(3)

	require.NoError(t, b.Append(NewTimeSeriesPoint(day(1), 1)))
	require.NoError(t, b.Append(NewTimeSeriesPoint(day(3), 3)))

	tests := []struct {
		name  string
		point TimeSeriesPoint
	}{
		{"duplicate timestamp", NewTimeSeriesPoint(day(3), 4)},
		{"out of order", NewTimeSeriesPoint(day(2), 2)},
		{"zero timestamp", TimeSeriesPoint{Value: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Append(tt.point)
			assert.ErrorIs(t, err, utils.ErrInvalidArgument)
		})
	}

	assert.Equal(t, 2, b.Len())
	series := b.Build()
	assert.Equal(t, 2, series.Len())
	assert.Equal(t, 0, b.Len())
}

func TestSeriesBuilder_BuildIsFrozen(t *testing.T) {
	b := NewSeriesBuilder(4)
	require.NoError(t, b.Append(NewTimeSeriesPoint(day(1), 1)))
	series := b.Build()

	require.NoError(t, b.Append(NewTimeSeriesPoint(day(2), 2)))
	assert.Equal(t, 1, series.Len())

	points := series.Points()
	points[0].Value = 99
	assert.Equal(t, 1.0, series.At(0).Value)
}

func TestNewTimeSeries_RejectsUnordered(t *testing.T) {
	_, err := NewTimeSeries([]TimeSeriesPoint{
		NewTimeSeriesPoint(day(2), 1),
		NewTimeSeriesPoint(day(1), 2),
	})
	assert.ErrorIs(t, err, utils.ErrInvalidArgument)
}

func TestTimeSeries_Accessors(t *testing.T) {
	series, err := NewTimeSeries(testPoints(10, 20, 30))
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20, 30}, series.Values())
	assert.Equal(t, []time.Time{day(1), day(2), day(3)}, series.Dates())
	assert.Equal(t, 1, series.IndexOf(day(2)))
	assert.Equal(t, -1, series.IndexOf(day(4)))
	assert.True(t, series.Contains(day(3)))
	assert.False(t, series.Contains(day(2).Add(time.Hour)))

	last, ok := series.Last()
	assert.True(t, ok)
	assert.Equal(t, 30.0, last.Value)

	_, ok = TimeSeries{}.Last()
	assert.False(t, ok)
}

func TestTimeSeries_Slice(t *testing.T) {
	series, err := NewTimeSeries(testPoints(1, 2, 3, 4, 5))
	require.NoError(t, err)

	window, err := series.Slice(day(2), day(4))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, window.Values())

	single, err := series.Slice(day(3), day(3))
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, single.Values())

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"missing start", day(2).Add(time.Minute), day(4)},
		{"missing end", day(2), day(9)},
		{"end before start", day(4), day(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := series.Slice(tt.start, tt.end)
			assert.ErrorIs(t, err, utils.ErrInvalidWindow)
		})
	}
}

func TestTimeSeries_EqualAndAligned(t *testing.T) {
	a, _ := NewTimeSeries(testPoints(1, 2, 3))
	b, _ := NewTimeSeries(testPoints(1, 2, 3))
	c, _ := NewTimeSeries(testPoints(1, 2, 4))
	d, _ := NewTimeSeries(testPoints(1, 2))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.True(t, a.AlignedWith(c))
	assert.False(t, a.AlignedWith(d))
}
