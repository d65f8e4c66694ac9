package history

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// MockService реализует интерфейс history.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) History(ctx context.Context, id, limit int) ([]*models.Event, error) {
	args := m.Called(ctx, id, limit)
	if res := args.Get(0); res != nil {
		return res.([]*models.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHistoryHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		id             string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное чтение журнала",
			id:   "123",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, 123, 0).Return([]*models.Event{
					{ID: 2, ActionType: models.ActionMemberRemovalFailed, TargetID: "123"},
					{ID: 1, ActionType: models.ActionSubscriptionExpired, TargetID: "123"},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"ActionType":"MEMBER_REMOVAL_FAILED"`,
		},
		{
			name:  "лимит передается в сервис",
			id:    "123",
			query: "?limit=5",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, 123, 5).Return([]*models.Event{}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name:           "некорректный id в URL",
			id:             "abc",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"failed to decode id from url"`,
		},
		{
			name: "ошибка сервиса",
			id:   "777",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, 777, 0).Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not read subscription history"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/admin/subscriptions/"+tt.id+"/events"+tt.query, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
