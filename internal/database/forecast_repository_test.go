package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-forecast/internal/models"
)

// MockPoolAdapter wraps pgxmock.PgxPoolIface to implement DatabasePool interface
type MockPoolAdapter struct {
	mock pgxmock.PgxPoolIface
}

func NewMockPoolAdapter(mock pgxmock.PgxPoolIface) DatabasePool {
	return &MockPoolAdapter{mock: mock}
}

func (m *MockPoolAdapter) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.mock.QueryRow(ctx, sql, args...)
}

func (m *MockPoolAdapter) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return m.mock.Exec(ctx, sql, args...)
}

func (m *MockPoolAdapter) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return m.mock.Query(ctx, sql, args...)
}

var forecastRowColumns = []string{
	"id", "instrument", "as_of", "last_price", "diversification_multiplier", "combined", "rules", "calculated_at",
}

func newMockRepository(t *testing.T) (*ForecastRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewForecastRepository(NewMockPoolAdapter(mockPool)), mockPool
}

func sampleForecast() *models.ForecastResult {
	return &models.ForecastResult{
		ID:         "0b7c6a52-8f0e-4d8a-9f35-2f9a1c7b0e11",
		Instrument: "DAX",
		AsOf:       time.Date(2016, time.January, 7, 0, 0, 0, 0, time.UTC),
		LastPrice:  decimal.RequireFromString("10234.56"),
		Rules: []models.RuleForecast{
			{
				Rule:   "ewmac_16_64",
				Raw:    decimal.RequireFromString("41.2"),
				Scalar: decimal.RequireFromString("0.25"),
				Scaled: decimal.RequireFromString("10.3"),
				Weight: decimal.NewFromInt(1),
			},
		},
		DiversificationMultiplier: decimal.NewFromInt(1),
		Combined:                  decimal.RequireFromString("10.3"),
		CalculatedAt:              time.Date(2016, time.January, 8, 6, 0, 0, 0, time.UTC),
	}
}

func forecastRow(t *testing.T, rows *pgxmock.Rows, f *models.ForecastResult) *pgxmock.Rows {
	t.Helper()
	rules, err := json.Marshal(f.Rules)
	require.NoError(t, err)
	return rows.AddRow(
		f.ID,
		f.Instrument,
		f.AsOf,
		f.LastPrice.String(),
		f.DiversificationMultiplier.String(),
		f.Combined.String(),
		rules,
		f.CalculatedAt,
	)
}

func TestForecastRepository_Save(t *testing.T) {
	repo, mockPool := newMockRepository(t)
	f := sampleForecast()

	mockPool.ExpectExec("INSERT INTO forecasts").
		WithArgs(f.ID, "DAX", f.AsOf, "10234.56", "1", "10.3", pgxmock.AnyArg(), f.CalculatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), f))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_Save_Errors(t *testing.T) {
	repo, mockPool := newMockRepository(t)

	assert.Error(t, repo.Save(context.Background(), nil))

	mockPool.ExpectExec("INSERT INTO forecasts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), sampleForecast())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save forecast for DAX")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_Latest(t *testing.T) {
	repo, mockPool := newMockRepository(t)
	f := sampleForecast()

	mockPool.ExpectQuery("FROM forecasts").
		WithArgs("DAX").
		WillReturnRows(forecastRow(t, pgxmock.NewRows(forecastRowColumns), f))

	got, err := repo.Latest(context.Background(), "DAX")
	require.NoError(t, err)

	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "DAX", got.Instrument)
	assert.True(t, got.LastPrice.Equal(f.LastPrice))
	assert.True(t, got.Combined.Equal(f.Combined))
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "ewmac_16_64", got.Rules[0].Rule)
	assert.True(t, got.Rules[0].Scalar.Equal(decimal.RequireFromString("0.25")))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_Latest_NotFound(t *testing.T) {
	repo, mockPool := newMockRepository(t)

	mockPool.ExpectQuery("FROM forecasts").
		WithArgs("BUND").
		WillReturnRows(pgxmock.NewRows(forecastRowColumns))

	got, err := repo.Latest(context.Background(), "BUND")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrForecastNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_Latest_BadDecimal(t *testing.T) {
	repo, mockPool := newMockRepository(t)
	f := sampleForecast()

	mockPool.ExpectQuery("FROM forecasts").
		WithArgs("DAX").
		WillReturnRows(pgxmock.NewRows(forecastRowColumns).
			AddRow(f.ID, "DAX", f.AsOf, "not-a-number", "1", "2", []byte("[]"), f.CalculatedAt))

	_, err := repo.Latest(context.Background(), "DAX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last_price")
}

func TestForecastRepository_ListLatest(t *testing.T) {
	repo, mockPool := newMockRepository(t)

	bund := sampleForecast()
	bund.ID = "6d0f6d1e-7e44-4bb7-a0c4-0b8b4a3f6b21"
	bund.Instrument = "BUND"
	dax := sampleForecast()

	rows := pgxmock.NewRows(forecastRowColumns)
	forecastRow(t, rows, bund)
	forecastRow(t, rows, dax)
	mockPool.ExpectQuery("SELECT DISTINCT ON \\(instrument\\)").WillReturnRows(rows)

	got, err := repo.ListLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BUND", got[0].Instrument)
	assert.Equal(t, "DAX", got[1].Instrument)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_ListLatest_QueryError(t *testing.T) {
	repo, mockPool := newMockRepository(t)

	mockPool.ExpectQuery("SELECT DISTINCT ON").WillReturnError(errors.New("relation does not exist"))

	got, err := repo.ListLatest(context.Background())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestForecastRepository_History(t *testing.T) {
	repo, mockPool := newMockRepository(t)

	_, err := repo.History(context.Background(), "DAX", 0)
	assert.Error(t, err)

	mockPool.ExpectQuery("FROM forecasts").
		WithArgs("DAX", 5).
		WillReturnRows(forecastRow(t, pgxmock.NewRows(forecastRowColumns), sampleForecast()))

	got, err := repo.History(context.Background(), "DAX", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestForecastRepository_DeleteOlderThan(t *testing.T) {
	repo, mockPool := newMockRepository(t)
	cutoff := time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectExec("DELETE FROM forecasts").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS forecasts").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), NewMockPoolAdapter(mockPool)))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), NewMockPoolAdapter(mockPool))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_create_forecasts.sql")
}
