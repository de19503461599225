package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
)

type MockRefreshService struct {
	mock.Mock
}

func (m *MockRefreshService) Refresh(ctx context.Context) (*refresh.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refresh.Run), args.Error(1)
}

func (m *MockRefreshService) Status(ctx context.Context) (*refresh.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refresh.Status), args.Error(1)
}

// pendingKicker accepts one request and reports every later one as merged.
type pendingKicker struct {
	pending bool
}

func (k *pendingKicker) Kick() bool {
	if k.pending {
		return false
	}
	k.pending = true
	return true
}

func newRefreshRouter(svc refresh.Service, kicker handler.Kicker) http.Handler {
	router := chi.NewRouter()
	handler.NewRefreshHandler(svc, kicker).RegisterRoutes(router)
	return router
}

func TestRefreshHandler_Refresh(t *testing.T) {
	svc := new(MockRefreshService)
	router := newRefreshRouter(svc, &pendingKicker{})

	post := func() handler.RefreshAcceptedResponse {
		t.Helper()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))
		require.Equal(t, http.StatusAccepted, rr.Code)

		var resp handler.RefreshAcceptedResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp
	}

	first := post()
	assert.True(t, first.Queued)
	assert.Equal(t, "Refresh queued", first.Message)

	second := post()
	assert.False(t, second.Queued, "a pending refresh absorbs the request")
	assert.Equal(t, "Refresh already pending", second.Message)

	svc.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestRefreshHandler_Status(t *testing.T) {
	finished := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	msg := "canceling statement due to statement timeout"
	success := &refresh.Run{
		ID:         uuid.Must(uuid.FromString("0b0e4b8e-5ad4-4a63-9f0a-000000000001")),
		Relation:   refresh.SnapshotRelation,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
		Status:     refresh.RunSucceeded,
		RowCount:   31,
	}
	failed := &refresh.Run{
		ID:         uuid.Must(uuid.FromString("0b0e4b8e-5ad4-4a63-9f0a-000000000002")),
		Relation:   refresh.SnapshotRelation,
		StartedAt:  finished.Add(time.Minute),
		FinishedAt: finished.Add(2 * time.Minute),
		Status:     refresh.RunFailed,
		Error:      &msg,
	}

	tests := []struct {
		name           string
		status         *refresh.Status
		err            error
		expectedStatus int
		check          func(t *testing.T, body []byte)
	}{
		{
			name:           "fresh snapshot",
			status:         &refresh.Status{LastSuccess: success, LastAttempt: failed, AgeSeconds: 120},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var got map[string]any
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, false, got["in_progress"])
				assert.EqualValues(t, 120, got["age_seconds"])

				last := got["last_attempt"].(map[string]any)
				assert.Equal(t, refresh.RunFailed, last["status"])
				assert.Equal(t, msg, last["error"])

				ok := got["last_success"].(map[string]any)
				assert.Equal(t, "0b0e4b8e-5ad4-4a63-9f0a-000000000001", ok["refresh_id"])
				assert.EqualValues(t, 31, ok["row_count"])
			},
		},
		{
			name:           "never refreshed",
			status:         &refresh.Status{},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"in_progress":false}`, string(body))
			},
		},
		{
			name:           "log unavailable",
			err:            errors.New("relation analytics.refresh_log does not exist"),
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"error":"Failed to fetch refresh status"}`, string(body))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRefreshService)
			if tt.err != nil {
				svc.On("Status", mock.Anything).Return(nil, tt.err).Once()
			} else {
				svc.On("Status", mock.Anything).Return(tt.status, nil).Once()
			}

			rr := httptest.NewRecorder()
			newRefreshRouter(svc, &pendingKicker{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/refresh/status", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			tt.check(t, rr.Body.Bytes())
			svc.AssertExpectations(t)
		})
	}
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name           string
		db             handler.Pinger
		expectedStatus int
		expectedBody   string
	}{
		{name: "healthy", db: fakePinger{}, expectedStatus: http.StatusOK, expectedBody: "OK"},
		{name: "no database", db: nil, expectedStatus: http.StatusOK, expectedBody: "OK"},
		{
			name:           "database down",
			db:             fakePinger{err: errors.New("connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "database unavailable\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.Health(tt.db).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedBody, rr.Body.String())
		})
	}
}
