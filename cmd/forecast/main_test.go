package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-forecast/internal/api/handlers"
	"github.com/irfndi/celebrum-forecast/internal/cache"
	"github.com/irfndi/celebrum-forecast/internal/config"
	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
)

func writePriceFile(t *testing.T, dir, name string, values []float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Datum;Schluss\n")
	start := time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		fmt.Fprintf(&b, "%s;%s\n", start.AddDate(0, 0, i).Format("02.01.2006"),
			strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o600))
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Data: config.DataConfig{
			Directory:        dir,
			Delimiter:        ";",
			DateLayout:       "02.01.2006",
			DecimalSeparator: ",",
			Timezone:         "UTC",
		},
		Instruments: []config.InstrumentConfig{
			{Name: "DAX", File: "dax.csv"},
			{Name: "SPX", File: "spx.csv"},
		},
		Rules: config.RulesConfig{
			EWMAC: []config.EWMACConfig{{ShortHorizon: 2, LongHorizon: 8, Weight: 1}},
		},
		Combination: config.CombinationConfig{
			Correlations: [][]float64{{1}},
			ForecastCap:  20,
			BaseScale:    10,
		},
		Telemetry: config.TelemetryConfig{Exporter: "stdout"},
	}
}

func risingPrices(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i)*1.5 + float64(i%3)
	}
	return values
}

func TestLoadSeries(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "dax.csv", risingPrices(30))
	writePriceFile(t, dir, "spx.csv", risingPrices(20))

	series, err := loadSeries(testConfig(dir), logging.NewDiscardLogger())
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "DAX", series[0].Name())
	assert.Equal(t, 30, series[0].Len())
	assert.Equal(t, 20, series[1].Len())
}

func TestLoadSeries_MissingFile(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "dax.csv", risingPrices(30))

	_, err := loadSeries(testConfig(dir), logging.NewDiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPX")
}

func TestRun_ComputesWithoutServer(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "dax.csv", risingPrices(30))
	writePriceFile(t, dir, "spx.csv", risingPrices(20))

	assert.NoError(t, run(context.Background(), testConfig(dir), logging.NewDiscardLogger()))
}

func TestRun_AllInstrumentsFail(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "dax.csv", risingPrices(5))
	writePriceFile(t, dir, "spx.csv", risingPrices(5))

	err := run(context.Background(), testConfig(dir), logging.NewDiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAX")
	assert.Contains(t, err.Error(), "SPX")
}

type recordingSaver struct {
	saved []string
	err   error
}

func (r *recordingSaver) Save(_ context.Context, forecast *models.ForecastResult) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, forecast.Instrument)
	return nil
}

func TestSaveAll(t *testing.T) {
	results := []*models.ForecastResult{{Instrument: "DAX"}, {Instrument: "SPX"}}

	saver := &recordingSaver{}
	require.NoError(t, saveAll(context.Background(), saver, results))
	assert.Equal(t, []string{"DAX", "SPX"}, saver.saved)

	failing := &recordingSaver{err: errors.New("disk full")}
	assert.Error(t, saveAll(context.Background(), failing, results))
}

func TestNewRouter(t *testing.T) {
	memory := cache.NewMemoryForecastCache()
	require.NoError(t, memory.Set(context.Background(), &models.ForecastResult{Instrument: "DAX"}))

	router := newRouter(testConfig(t.TempDir()), logging.NewDiscardLogger(), memory, nil,
		map[string]handlers.HealthChecker{"database": nil})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/forecasts/DAX", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, 0, http.NotFoundHandler(), logging.NewDiscardLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
