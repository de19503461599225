package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/transport"
)

// catalogOnly answers the catalog endpoint; other reports are not routed in these tests.
type catalogOnly struct {
	analytics.Service
}

func (catalogOnly) Catalog() []analytics.Relation { return analytics.Catalog() }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestNewRouter(t *testing.T) {
	router := transport.NewRouter(transport.Handlers{
		Reports: handler.NewReportHandler(catalogOnly{}),
		DB:      okPinger{},
	})

	tests := []struct {
		name           string
		method         string
		target         string
		expectedStatus int
	}{
		{name: "health", method: http.MethodGet, target: "/health", expectedStatus: http.StatusOK},
		{name: "catalog under api prefix", method: http.MethodGet, target: "/api/v1/catalog", expectedStatus: http.StatusOK},
		{name: "catalog without prefix", method: http.MethodGet, target: "/catalog", expectedStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPost, target: "/api/v1/catalog", expectedStatus: http.StatusMethodNotAllowed},
		{name: "refresh not wired", method: http.MethodPost, target: "/api/v1/refresh", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestNewRouter_ExposesMetrics(t *testing.T) {
	router := transport.NewRouter(transport.Handlers{DB: okPinger{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",route="/health",status="200"}`)
}
