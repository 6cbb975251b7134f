package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zots0127/fileshare/internal/adapter/handler"
	"github.com/zots0127/fileshare/internal/domain/entities"
)

type mockHealth struct {
	mock.Mock
}

func (m *mockHealth) GetHealth(ctx context.Context) (*entities.HealthCheck, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*entities.HealthCheck)
	return res, args.Error(1)
}

func (m *mockHealth) GetReadiness(ctx context.Context) (bool, string) {
	args := m.Called(ctx)
	return args.Bool(0), args.String(1)
}

func (m *mockHealth) GetLiveness(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func healthRouter(svc *mockHealth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler.NewHealthHandler(svc).RegisterRoutes(r)
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler_GetHealth(t *testing.T) {
	tests := []struct {
		name   string
		health *entities.HealthCheck
		err    error
		status int
	}{
		{"Up", &entities.HealthCheck{Status: entities.HealthStatusUp}, nil, http.StatusOK},
		{"Partial", &entities.HealthCheck{Status: entities.HealthStatusPartial}, nil, http.StatusOK},
		{"Down", &entities.HealthCheck{Status: entities.HealthStatusDown}, nil, http.StatusServiceUnavailable},
		{"Error", nil, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockHealth)
			svc.On("GetHealth", mock.Anything).Return(tt.health, tt.err)

			w := get(healthRouter(svc), "/health")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	svc := new(mockHealth)
	svc.On("GetReadiness", mock.Anything).Return(false, "catalog unreachable").Once()
	svc.On("GetReadiness", mock.Anything).Return(true, "ready").Once()
	r := healthRouter(svc)

	w := get(r, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not_ready","message":"catalog unreachable"}`, w.Body.String())

	w = get(r, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Liveness(t *testing.T) {
	svc := new(mockHealth)
	svc.On("GetLiveness", mock.Anything).Return(true)

	w := get(healthRouter(svc), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}
