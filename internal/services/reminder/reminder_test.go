package reminder

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-subs/internal/messaging/whatsapp"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockRepository) GetChannel(ctx context.Context, id int) (*models.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Channel), args.Error(1)
}

func (m *MockRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, phone, template string, params map[string]string) (whatsapp.SendResult, error) {
	args := m.Called(ctx, phone, template, params)
	return args.Get(0).(whatsapp.SendResult), args.Error(1)
}

// memDeduper — потокобезопасный SETNX в памяти.
type memDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemDeduper() *memDeduper {
	return &memDeduper{keys: make(map[string]bool)}
}

func (d *memDeduper) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

type spyEvents struct {
	mu      sync.Mutex
	actions []string
}

func (s *spyEvents) Record(_ context.Context, _ models.ActorType, action, _, _, _ string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func (s *spyEvents) count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actions {
		if a == action {
			n++
		}
	}
	return n
}

var testNow = time.Date(2024, 1, 29, 9, 30, 0, 0, time.UTC)

func newTestSweeper(repo *MockRepository, sender *MockSender, dedupe Deduper, events *spyEvents, defaultDays int) *Sweeper {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	sweeper := NewSweeper(repo, sender, dedupe, events, defaultDays, 4, time.Second, log)
	sweeper.now = func() time.Time { return testNow }
	return sweeper
}

func subEnding(id int, end time.Time) *models.Subscription {
	return &models.Subscription{
		ID:        id,
		UserUID:   "user-1",
		ChannelID: 10,
		Status:    models.StatusActive,
		EndDate:   end,
	}
}

func TestSweep_SendsOnMatchingDay(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)
	events := &spyEvents{}

	// Окончание 2024-01-31, переопределение канала 2 дня: напоминание 2024-01-29
	two := 2
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &two}, nil)
	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", Phone: "+79001234567"}, nil)
	sender.On("Send", mock.Anything, "+79001234567", ReminderTemplate, map[string]string{
		"channel": "Traders Club",
		"days":    "2",
		"ends_on": "2024-01-31",
	}).Return(whatsapp.SendResult{Success: true, MessageRef: "msg_1"}, nil)

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), events, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, 1, events.count(models.ActionReminderSent))
	sender.AssertExpectations(t)
}

func TestSweep_NoSendOutsideWindow(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)

	// Дефолт 3 дня, окончание 2024-01-31: напоминание 2024-01-28, сегодня 2024-01-29
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club"}, nil)

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), &spyEvents{}, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_SecondRunSameDayDoesNotResend(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)
	events := &spyEvents{}

	two := 2
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &two}, nil)
	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", Phone: "+79001234567"}, nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(whatsapp.SendResult{Success: true}, nil).Once()

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), events, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, 1, events.count(models.ActionReminderSent))
	sender.AssertExpectations(t)
}

func TestSweep_MissingPhoneSkips(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)
	events := &spyEvents{}

	two := 2
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &two}, nil)
	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1"}, nil)

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), events, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, 1, events.count(models.ActionReminderSkipped))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_SendFailureRecorded(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)
	events := &spyEvents{}

	two := 2
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &two}, nil)
	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", Phone: "+79001234567"}, nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(whatsapp.SendResult{}, assert.AnError)

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), events, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, events.count(models.ActionReminderFailed))
}

func TestSweep_DedupeDownStillSends(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)
	events := &spyEvents{}

	two := 2
	dedupe := newMemDeduper()
	dedupe.err = assert.AnError

	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &two}, nil)
	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", Phone: "+79001234567"}, nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(whatsapp.SendResult{Success: true}, nil)

	sweeper := newTestSweeper(repo, sender, dedupe, events, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, events.count(models.ActionReminderSent))
}

func TestSweep_ZeroReminderDaysDisables(t *testing.T) {
	repo := new(MockRepository)
	sender := new(MockSender)

	zero := 0
	repo.On("FindActiveSubscriptions", mock.Anything).
		Return([]*models.Subscription{subEnding(15, time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC))}, nil)
	repo.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, Name: "Traders Club", ReminderDays: &zero}, nil)

	sweeper := newTestSweeper(repo, sender, newMemDeduper(), &spyEvents{}, 3)

	require.NoError(t, sweeper.Sweep(context.Background()))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
