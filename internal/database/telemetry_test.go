package database

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracedDB_Exec(t *testing.T) {
	recorder := withRecorder(t)
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("DELETE FROM forecasts").WillReturnResult(pgxmock.NewResult("DELETE", 2))

	db := NewTracedDB(NewMockPoolAdapter(mockPool))
	_, err = db.Exec(context.Background(), "DELETE FROM forecasts")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.exec", spans[0].Name())

	op, ok := spanAttribute(spans[0], "db.operation")
	require.True(t, ok)
	assert.Equal(t, "DELETE", op.AsString())

	rows, ok := spanAttribute(spans[0], "db.rows_affected")
	require.True(t, ok)
	assert.Equal(t, int64(2), rows.AsInt64())
}

func TestTracedDB_QueryError(t *testing.T) {
	recorder := withRecorder(t)
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

	db := NewTracedDB(NewMockPoolAdapter(mockPool))
	_, err = db.Query(context.Background(), "  SELECT 1")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	op, _ := spanAttribute(spans[0], "db.operation")
	assert.Equal(t, "SELECT", op.AsString())
}

func TestTracedDB_WrapsRepository(t *testing.T) {
	recorder := withRecorder(t)
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("FROM forecasts").
		WithArgs("DAX").
		WillReturnRows(pgxmock.NewRows(forecastRowColumns))

	repo := NewForecastRepository(NewTracedDB(NewMockPoolAdapter(mockPool)))
	_, err = repo.Latest(context.Background(), "DAX")
	assert.ErrorIs(t, err, ErrForecastNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.query_row", spans[0].Name())
}

func TestStatementVerb(t *testing.T) {
	assert.Equal(t, "INSERT", statementVerb("\n\t\tinsert into forecasts"))
	assert.Equal(t, "", statementVerb("   "))
}
