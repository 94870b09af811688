package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHealthChecker mocks a dependency health check
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestHealthHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		dbError        error
		redisError     error
		expectedStatus int
		expectedState  string
	}{
		{
			name:           "all services healthy",
			expectedStatus: http.StatusOK,
			expectedState:  "healthy",
		},
		{
			name:           "database unhealthy",
			dbError:        errors.New("connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unhealthy",
		},
		{
			name:           "redis unhealthy",
			redisError:     errors.New("i/o timeout"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &MockHealthChecker{}
			db.On("HealthCheck", mock.Anything).Return(tt.dbError)
			redis := &MockHealthChecker{}
			redis.On("HealthCheck", mock.Anything).Return(tt.redisError)

			handler := NewHealthHandler("1.0.0", map[string]HealthChecker{
				"database": db,
				"redis":    redis,
			})
			router := gin.New()
			router.GET("/health", handler.HealthCheck)

			w := serve(router, "/health")
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedState, resp.Status)
			assert.Equal(t, "1.0.0", resp.Version)
			assert.NotEmpty(t, resp.Uptime)
			if tt.dbError != nil {
				assert.Contains(t, resp.Services["database"], "connection refused")
			}
			db.AssertExpectations(t)
			redis.AssertExpectations(t)
		})
	}
}

func TestHealthHandler_DisabledDependencies(t *testing.T) {
	handler := NewHealthHandler("1.0.0", map[string]HealthChecker{
		"database": nil,
		"redis":    nil,
	})
	router := gin.New()
	router.GET("/health", handler.HealthCheck)

	w := serve(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp.Services["database"])
	assert.Equal(t, "disabled", resp.Services["redis"])
}
