package expiry

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

	"github.com/magabrotheeeer/channel-subs/internal/membership/telegram"
	"github.com/magabrotheeeer/channel-subs/internal/models"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindSubscriptionsPastEndDate(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockRepository) UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error) {
	args := m.Called(ctx, id, from, to)
	return args.Int(0), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetUser(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockCatalog) GetChannel(ctx context.Context, id int) (*models.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Channel), args.Error(1)
}

type MockMembership struct {
	mock.Mock
}

func (m *MockMembership) RemoveMember(ctx context.Context, memberID, channelRef string) (telegram.RemovalResult, error) {
	args := m.Called(ctx, memberID, channelRef)
	return args.Get(0).(telegram.RemovalResult), args.Error(1)
}

func (m *MockMembership) CreateInviteLink(ctx context.Context, channelRef string, expiry time.Time, memberLimit int) (telegram.InviteResult, error) {
	args := m.Called(ctx, channelRef, expiry, memberLimit)
	return args.Get(0).(telegram.InviteResult), args.Error(1)
}

// spyEvents потокобезопасен: свип пишет события из нескольких воркеров.
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

var testNow = time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)

func newTestSweeper(repo *MockRepository, catalog *MockCatalog, membership *MockMembership, events *spyEvents) *Sweeper {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	remover := removal.NewRemover(catalog, membership, events, nil, time.Second, log)
	sweeper := NewSweeper(repo, events, remover, 4, log)
	sweeper.now = func() time.Time { return testNow }
	return sweeper
}

func activeSub(id int) *models.Subscription {
	return &models.Subscription{
		ID:               id,
		UserUID:          "user-1",
		ChannelID:        10,
		TelegramMemberID: "555",
		Status:           models.StatusActive,
		EndDate:          time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestSweep_ExpiresAndRemovesMember(t *testing.T) {
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	membership := new(MockMembership)
	events := &spyEvents{}

	// Окно закончилось 2024-01-31, свип идёт 2024-02-01
	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{activeSub(15)}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(1, nil)
	catalog.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, TelegramChatID: "-100987"}, nil)
	membership.On("RemoveMember", mock.Anything, "555", "-100987").
		Return(telegram.RemovalResult{Success: true}, nil)

	sweeper := newTestSweeper(repo, catalog, membership, events)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, 1, events.count(models.ActionSubscriptionExpired))
	assert.Equal(t, 1, events.count(models.ActionMemberRemoved))
	membership.AssertExpectations(t)
}

func TestSweep_LostRaceSkipsEventAndRemoval(t *testing.T) {
	repo := new(MockRepository)
	membership := new(MockMembership)
	events := &spyEvents{}

	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{activeSub(15)}, nil)
	// Коррекция при чтении успела первой
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(0, nil)

	sweeper := newTestSweeper(repo, new(MockCatalog), membership, events)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Empty(t, events.actions)
	membership.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_AbandonedPendingSkipsRemoval(t *testing.T) {
	repo := new(MockRepository)
	membership := new(MockMembership)
	events := &spyEvents{}

	pending := activeSub(16)
	pending.Status = models.StatusPending

	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{pending}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 16, models.StatusPending, models.StatusExpired).
		Return(1, nil)

	sweeper := newTestSweeper(repo, new(MockCatalog), membership, events)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, 1, events.count(models.ActionSubscriptionExpired))
	membership.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_RemovalFailureDoesNotStopOthers(t *testing.T) {
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	membership := new(MockMembership)
	events := &spyEvents{}

	first := activeSub(15)
	second := activeSub(20)
	second.TelegramMemberID = "777"

	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{first, second}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(1, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 20, models.StatusActive, models.StatusExpired).
		Return(1, nil)
	catalog.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, TelegramChatID: "-100987"}, nil)
	membership.On("RemoveMember", mock.Anything, "555", "-100987").
		Return(telegram.RemovalResult{}, assert.AnError)
	membership.On("RemoveMember", mock.Anything, "777", "-100987").
		Return(telegram.RemovalResult{Success: true}, nil)

	sweeper := newTestSweeper(repo, catalog, membership, events)

	require.NoError(t, sweeper.Sweep(context.Background()))

	// Обе подписки истекли, несмотря на сбой удаления первой
	assert.Equal(t, 2, events.count(models.ActionSubscriptionExpired))
	assert.Equal(t, 1, events.count(models.ActionMemberRemoved))
	assert.Equal(t, 1, events.count(models.ActionMemberRemovalFailed))
}

func TestSweep_FindFailureReturnsError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return(nil, assert.AnError)

	sweeper := newTestSweeper(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	assert.Error(t, sweeper.Sweep(context.Background()))
}

func TestSweep_EmptyRunIsQuiet(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{}, nil)

	sweeper := newTestSweeper(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	require.NoError(t, sweeper.Sweep(context.Background()))
}

func TestSweep_SimulatedAdapterAlwaysSucceeds(t *testing.T) {
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	events := &spyEvents{}

	repo.On("FindSubscriptionsPastEndDate", mock.Anything, testNow).
		Return([]*models.Subscription{activeSub(15)}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(1, nil)
	catalog.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, TelegramChatID: "-100987"}, nil)

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	remover := removal.NewRemover(catalog, telegram.NewSimulated(), events, nil, time.Second, log)
	sweeper := NewSweeper(repo, events, remover, 4, log)
	sweeper.now = func() time.Time { return testNow }

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, events.count(models.ActionMemberRemoved))
}
