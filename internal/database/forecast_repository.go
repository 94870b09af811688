package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-forecast/internal/models"
)

// ErrForecastNotFound is returned when no forecast is stored for an instrument.
var ErrForecastNotFound = errors.New("forecast not found")

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// ForecastRepository persists computed forecasts.
type ForecastRepository struct {
	pool DatabasePool
}

// NewForecastRepository creates a new forecast repository.
func NewForecastRepository(pool DatabasePool) *ForecastRepository {
	return &ForecastRepository{
		pool: pool,
	}
}

const forecastColumns = `id::text, instrument, as_of, last_price::text, diversification_multiplier::text,
		combined::text, rules, calculated_at`

// Save inserts a forecast. Saving the same ID twice is a no-op.
func (r *ForecastRepository) Save(ctx context.Context, forecast *models.ForecastResult) error {
	if forecast == nil {
		return fmt.Errorf("cannot save a nil forecast")
	}
	rules, err := json.Marshal(forecast.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rule forecasts: %w", err)
	}

	query := `
		INSERT INTO forecasts (id, instrument, as_of, last_price, diversification_multiplier, combined, rules, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		forecast.ID,
		forecast.Instrument,
		forecast.AsOf,
		forecast.LastPrice.String(),
		forecast.DiversificationMultiplier.String(),
		forecast.Combined.String(),
		rules,
		forecast.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast for %s: %w", forecast.Instrument, err)
	}
	return nil
}

// Latest returns the most recently calculated forecast for an instrument.
func (r *ForecastRepository) Latest(ctx context.Context, instrument string) (*models.ForecastResult, error) {
	query := `
		SELECT ` + forecastColumns + `
		FROM forecasts
		WHERE instrument = $1
		ORDER BY calculated_at DESC
		LIMIT 1
	`

	forecast, err := scanForecast(r.pool.QueryRow(ctx, query, instrument))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrForecastNotFound, instrument)
		}
		return nil, fmt.Errorf("failed to get latest forecast for %s: %w", instrument, err)
	}
	return forecast, nil
}

// ListLatest returns the latest forecast of every instrument, ordered by instrument.
func (r *ForecastRepository) ListLatest(ctx context.Context) ([]*models.ForecastResult, error) {
	query := `
		SELECT DISTINCT ON (instrument) ` + forecastColumns + `
		FROM forecasts
		ORDER BY instrument, calculated_at DESC
	`
	return r.list(ctx, query)
}

// History returns up to limit forecasts for an instrument, newest first.
func (r *ForecastRepository) History(ctx context.Context, instrument string, limit int) ([]*models.ForecastResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", limit)
	}
	query := `
		SELECT ` + forecastColumns + `
		FROM forecasts
		WHERE instrument = $1
		ORDER BY calculated_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, instrument, limit)
}

// DeleteOlderThan removes forecasts calculated before cutoff and reports how many were removed.
func (r *ForecastRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM forecasts WHERE calculated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old forecasts: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *ForecastRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ForecastResult, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []*models.ForecastResult
	for rows.Next() {
		forecast, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		forecasts = append(forecasts, forecast)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}
	return forecasts, nil
}

func scanForecast(row pgx.Row) (*models.ForecastResult, error) {
	var (
		forecast                        models.ForecastResult
		lastPrice, multiplier, combined string
		rules                           []byte
	)
	if err := row.Scan(
		&forecast.ID,
		&forecast.Instrument,
		&forecast.AsOf,
		&lastPrice,
		&multiplier,
		&combined,
		&rules,
		&forecast.CalculatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if forecast.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
		return nil, fmt.Errorf("invalid last_price %q: %w", lastPrice, err)
	}
	if forecast.DiversificationMultiplier, err = decimal.NewFromString(multiplier); err != nil {
		return nil, fmt.Errorf("invalid diversification_multiplier %q: %w", multiplier, err)
	}
	if forecast.Combined, err = decimal.NewFromString(combined); err != nil {
		return nil, fmt.Errorf("invalid combined %q: %w", combined, err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &forecast.Rules); err != nil {
			return nil, fmt.Errorf("invalid rules: %w", err)
		}
	}
	return &forecast, nil
}
