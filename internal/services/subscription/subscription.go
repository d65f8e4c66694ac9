// Package subscription содержит бизнес-логику чтения подписок с коррекцией
// статуса и административные операции продления и отзыва.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/models"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
)

// ErrNotActive — операция применима только к активной подписке.
var ErrNotActive = errors.New("subscription is not active")

// Repository определяет методы хранилища для сервиса подписок.
type Repository interface {
	ReadSubscription(ctx context.Context, id int) (*models.Subscription, error)
	UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error)
	ExtendSubscription(ctx context.Context, id int, days int) (int, error)
	ListEventsByTarget(ctx context.Context, targetType, targetID string, limit int) ([]*models.Event, error)
}

// EventRecorder пишет события в журнал аудита.
type EventRecorder interface {
	Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any)
}

// Service реализует бизнес-логику подписок.
type Service struct {
	repo    Repository
	events  EventRecorder
	remover *removal.Remover
	log     *slog.Logger
	now     func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, events EventRecorder, remover *removal.Remover, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		events:  events,
		remover: remover,
		log:     log,
		now:     time.Now,
	}
}

// Read возвращает подписку с актуальным статусом. Подписка с истёкшим окном
// корректируется на месте тем же условным переводом, что и в свипе: кто выиграл
// гонку, тот и пишет событие, второй участник молчит. Удаление из канала
// остаётся за свипом — путь чтения не трогает внешние системы.
func (s *Service) Read(ctx context.Context, id int) (*models.Subscription, error) {
	const op = "subscription.Read"

	sub, err := s.repo.ReadSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.isStale(sub) {
		return sub, nil
	}

	won, err := s.repo.UpdateSubscriptionStatusIf(ctx, sub.ID, sub.Status, models.StatusExpired)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if won > 0 {
		s.events.Record(ctx, models.ActorSystem, models.ActionSubscriptionExpired,
			"subscription", strconv.Itoa(sub.ID), "subscription expired, corrected on read", map[string]any{
				"previous_status": string(sub.Status),
				"end_date":        sub.EndDate,
			})
		sub.Status = models.StatusExpired
		return sub, nil
	}

	// Гонку выиграл другой актор, и это не обязательно экспирация:
	// параллельный отзыв оставил бы строку в revoked. Перечитываем.
	sub, err = s.repo.ReadSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// Extend добавляет дни к окончанию активной подписки по решению администратора.
func (s *Service) Extend(ctx context.Context, adminUID string, id, days int) error {
	const op = "subscription.Extend"

	if days <= 0 {
		return fmt.Errorf("%s: days must be positive", op)
	}

	affected, err := s.repo.ExtendSubscription(ctx, id, days)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotActive
	}

	s.events.Record(ctx, models.ActorAdmin, models.ActionSubscriptionExtended,
		"subscription", strconv.Itoa(id), "subscription extended by admin", map[string]any{
			"admin_uid": adminUID,
			"days":      days,
		})
	s.log.Info("subscription extended",
		slog.Int("subscription_id", id), slog.Int("days", days))
	return nil
}

// Revoke отзывает активную подписку и удаляет владельца из канала.
// Сбой удаления не откатывает отзыв: статус уже revoked, попытка удаления
// зафиксирована в журнале и ушла в очередь повторов.
func (s *Service) Revoke(ctx context.Context, adminUID string, id int, reason string) error {
	const op = "subscription.Revoke"

	affected, err := s.repo.UpdateSubscriptionStatusIf(ctx, id, models.StatusActive, models.StatusRevoked)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotActive
	}

	s.events.Record(ctx, models.ActorAdmin, models.ActionSubscriptionRevoked,
		"subscription", strconv.Itoa(id), "subscription revoked by admin", map[string]any{
			"admin_uid": adminUID,
			"reason":    reason,
		})

	sub, err := s.repo.ReadSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.remover.Remove(ctx, sub); err != nil {
		s.log.Error("member removal after revoke failed",
			slog.Int("subscription_id", id), slog.String("error", err.Error()))
	}
	return nil
}

// History возвращает последние события журнала по подписке, свежие первыми.
// Журнал — единственный источник правды о попытках удаления и напоминаниях,
// эндпоинт нужен администратору для разбора сбоев внешних систем.
func (s *Service) History(ctx context.Context, id, limit int) ([]*models.Event, error) {
	const op = "subscription.History"

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	events, err := s.repo.ListEventsByTarget(ctx, "subscription", strconv.Itoa(id), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

func (s *Service) isStale(sub *models.Subscription) bool {
	switch sub.Status {
	case models.StatusActive, models.StatusPending, models.StatusPendingKyc:
		return sub.EndDate.Before(s.now())
	}
	return false
}
