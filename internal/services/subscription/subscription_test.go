package subscription

import (
	"context"
	"io"
	"log/slog"
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

func (m *MockRepository) ReadSubscription(ctx context.Context, id int) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockRepository) UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error) {
	args := m.Called(ctx, id, from, to)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ExtendSubscription(ctx context.Context, id int, days int) (int, error) {
	args := m.Called(ctx, id, days)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ListEventsByTarget(ctx context.Context, targetType, targetID string, limit int) ([]*models.Event, error) {
	args := m.Called(ctx, targetType, targetID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Event), args.Error(1)
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

type spyEvents struct {
	actions []string
}

func (s *spyEvents) Record(_ context.Context, _ models.ActorType, action, _, _, _ string, _ map[string]any) {
	s.actions = append(s.actions, action)
}

var testNow = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo *MockRepository, catalog *MockCatalog, membership *MockMembership, events *spyEvents) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	remover := removal.NewRemover(catalog, membership, events, nil, time.Second, log)
	svc := New(repo, events, remover, log)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestRead_FreshSubscriptionUntouched(t *testing.T) {
	repo := new(MockRepository)
	events := &spyEvents{}

	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:      15,
		Status:  models.StatusActive,
		EndDate: testNow.AddDate(0, 0, 10),
	}, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), events)

	sub, err := svc.Read(context.Background(), 15)
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Empty(t, events.actions)
	repo.AssertNotCalled(t, "UpdateSubscriptionStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRead_StaleActiveCorrected(t *testing.T) {
	repo := new(MockRepository)
	events := &spyEvents{}

	// Окно закончилось вчера, свип ещё не прошёл
	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:      15,
		Status:  models.StatusActive,
		EndDate: testNow.AddDate(0, 0, -1),
	}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(1, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), events)

	sub, err := svc.Read(context.Background(), 15)
	require.NoError(t, err)

	assert.Equal(t, models.StatusExpired, sub.Status)
	assert.Equal(t, []string{models.ActionSubscriptionExpired}, events.actions)
}

func TestRead_LostRaceDoesNotLogEvent(t *testing.T) {
	repo := new(MockRepository)
	events := &spyEvents{}

	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:      15,
		Status:  models.StatusActive,
		EndDate: testNow.AddDate(0, 0, -1),
	}, nil).Once()
	// Свип успел первым: условный перевод не затронул строк,
	// актуальный статус берётся повторным чтением
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(0, nil)
	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:     15,
		Status: models.StatusExpired,
	}, nil).Once()

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), events)

	sub, err := svc.Read(context.Background(), 15)
	require.NoError(t, err)

	assert.Equal(t, models.StatusExpired, sub.Status)
	assert.Empty(t, events.actions)
}

func TestRead_LostRaceToRevokeReturnsRevoked(t *testing.T) {
	repo := new(MockRepository)
	events := &spyEvents{}

	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:      15,
		Status:  models.StatusActive,
		EndDate: testNow.AddDate(0, 0, -1),
	}, nil).Once()
	// Параллельный отзыв перевёл строку в revoked раньше коррекции
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusExpired).
		Return(0, nil)
	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID:     15,
		Status: models.StatusRevoked,
	}, nil).Once()

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), events)

	sub, err := svc.Read(context.Background(), 15)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRevoked, sub.Status)
	assert.Empty(t, events.actions)
}

func TestRead_StalePendingCorrected(t *testing.T) {
	repo := new(MockRepository)

	repo.On("ReadSubscription", mock.Anything, 16).Return(&models.Subscription{
		ID:      16,
		Status:  models.StatusPending,
		EndDate: testNow.AddDate(0, 0, -3),
	}, nil)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 16, models.StatusPending, models.StatusExpired).
		Return(1, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	sub, err := svc.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, sub.Status)
}

func TestRead_ExpiredStatusIsTerminal(t *testing.T) {
	repo := new(MockRepository)

	repo.On("ReadSubscription", mock.Anything, 17).Return(&models.Subscription{
		ID:      17,
		Status:  models.StatusRevoked,
		EndDate: testNow.AddDate(0, 0, -3),
	}, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	sub, err := svc.Read(context.Background(), 17)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, sub.Status)
	repo.AssertNotCalled(t, "UpdateSubscriptionStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExtend_Success(t *testing.T) {
	repo := new(MockRepository)
	events := &spyEvents{}

	repo.On("ExtendSubscription", mock.Anything, 15, 7).Return(1, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), events)

	err := svc.Extend(context.Background(), "admin-1", 15, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{models.ActionSubscriptionExtended}, events.actions)
}

func TestExtend_NotActive(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ExtendSubscription", mock.Anything, 15, 7).Return(0, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	err := svc.Extend(context.Background(), "admin-1", 15, 7)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestExtend_RejectsNonPositiveDays(t *testing.T) {
	svc := newTestService(new(MockRepository), new(MockCatalog), new(MockMembership), &spyEvents{})

	err := svc.Extend(context.Background(), "admin-1", 15, 0)
	assert.Error(t, err)
}

func TestRevoke_RemovesMember(t *testing.T) {
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	membership := new(MockMembership)
	events := &spyEvents{}

	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusRevoked).
		Return(1, nil)
	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID: 15, UserUID: "user-1", ChannelID: 10, TelegramMemberID: "555",
		Status: models.StatusRevoked,
	}, nil)
	catalog.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, TelegramChatID: "-100987"}, nil)
	membership.On("RemoveMember", mock.Anything, "555", "-100987").
		Return(telegram.RemovalResult{Success: true}, nil)

	svc := newTestService(repo, catalog, membership, events)

	err := svc.Revoke(context.Background(), "admin-1", 15, "chargeback")
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.ActionSubscriptionRevoked,
		models.ActionMemberRemoved,
	}, events.actions)
}

func TestRevoke_NotActive(t *testing.T) {
	repo := new(MockRepository)
	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusRevoked).
		Return(0, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	err := svc.Revoke(context.Background(), "admin-1", 15, "chargeback")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestHistory_ReturnsEvents(t *testing.T) {
	repo := new(MockRepository)

	recorded := []*models.Event{
		{ID: 2, ActionType: models.ActionMemberRemovalFailed, TargetID: "15"},
		{ID: 1, ActionType: models.ActionSubscriptionExpired, TargetID: "15"},
	}
	repo.On("ListEventsByTarget", mock.Anything, "subscription", "15", 50).Return(recorded, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	// Неположительный limit заменяется дефолтом
	events, err := svc.History(context.Background(), 15, 0)
	require.NoError(t, err)
	assert.Equal(t, recorded, events)
}

func TestHistory_CapsLimit(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListEventsByTarget", mock.Anything, "subscription", "15", 50).Return([]*models.Event{}, nil)

	svc := newTestService(repo, new(MockCatalog), new(MockMembership), &spyEvents{})

	_, err := svc.History(context.Background(), 15, 5000)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRevoke_RemovalFailureDoesNotUndoRevoke(t *testing.T) {
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	membership := new(MockMembership)
	events := &spyEvents{}

	repo.On("UpdateSubscriptionStatusIf", mock.Anything, 15, models.StatusActive, models.StatusRevoked).
		Return(1, nil)
	repo.On("ReadSubscription", mock.Anything, 15).Return(&models.Subscription{
		ID: 15, UserUID: "user-1", ChannelID: 10, TelegramMemberID: "555",
	}, nil)
	catalog.On("GetChannel", mock.Anything, 10).
		Return(&models.Channel{ID: 10, TelegramChatID: "-100987"}, nil)
	membership.On("RemoveMember", mock.Anything, "555", "-100987").
		Return(telegram.RemovalResult{}, assert.AnError)

	svc := newTestService(repo, catalog, membership, events)

	err := svc.Revoke(context.Background(), "admin-1", 15, "chargeback")
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.ActionSubscriptionRevoked,
		models.ActionMemberRemovalFailed,
	}, events.actions)
}
