package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) AppendEvent(ctx context.Context, event models.Event) (int, error) {
	args := m.Called(ctx, event)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRecord_AppendsEvent(t *testing.T) {
	repo := new(MockRepository)
	repo.On("AppendEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.ActionType == models.ActionSubscriptionExpired &&
			e.TargetType == "subscription" &&
			e.TargetID == "15"
	})).Return(1, nil).Once()

	recorder := NewRecorder(repo, newNoopLogger())
	recorder.Record(context.Background(), models.ActorSystem, models.ActionSubscriptionExpired,
		"subscription", "15", "subscription expired automatically", nil)

	repo.AssertExpectations(t)
}

func TestRecord_AppendFailureDoesNotPanic(t *testing.T) {
	repo := new(MockRepository)
	repo.On("AppendEvent", mock.Anything, mock.Anything).Return(0, errors.New("db down")).Once()

	recorder := NewRecorder(repo, newNoopLogger())
	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), models.ActorSystem, models.ActionReminderSent,
			"subscription", "15", "reminder sent", map[string]any{"phone": "+7900"})
	})

	repo.AssertExpectations(t)
}
