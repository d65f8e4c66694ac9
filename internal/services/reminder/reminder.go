// Package reminder реализует свип напоминаний: за N дней до окончания
// активной подписки владельцу уходит WhatsApp-сообщение. Срок N задаётся
// настройкой канала, при её отсутствии — системным дефолтом.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/lib/day"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/messaging/whatsapp"
	"github.com/magabrotheeeer/channel-subs/internal/metrics"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// ReminderTemplate — имя шаблона сообщения на стороне messaging API.
const ReminderTemplate = "subscription_reminder"

// Repository определяет методы хранилища для свипа напоминаний.
type Repository interface {
	FindActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error)
	GetChannel(ctx context.Context, id int) (*models.Channel, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

// EventRecorder пишет события в журнал аудита.
type EventRecorder interface {
	Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any)
}

// Deduper ставит одноразовый маркер отправки. Повторный запуск свипа
// в те же сутки не должен отправить сообщение второй раз.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Sweeper выполняет свип напоминаний.
type Sweeper struct {
	repo        Repository
	sender      whatsapp.Sender
	dedupe      Deduper
	events      EventRecorder
	defaultDays int
	workers     int
	timeout     time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// NewSweeper создает новый экземпляр Sweeper.
func NewSweeper(repo Repository, sender whatsapp.Sender, dedupe Deduper, events EventRecorder,
	defaultDays, workers int, timeout time.Duration, log *slog.Logger) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{
		repo:        repo,
		sender:      sender,
		dedupe:      dedupe,
		events:      events,
		defaultDays: defaultDays,
		workers:     workers,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
}

// Sweep отправляет напоминания по всем активным подпискам, чья дата
// напоминания приходится на сегодня. Записи обрабатываются независимо.
func (s *Sweeper) Sweep(ctx context.Context) error {
	const op = "reminder.Sweep"
	metrics.SweepRuns.WithLabelValues("reminder").Inc()

	items, err := s.repo.FindActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	today := day.Normalize(s.now())
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, sub := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(sub *models.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.process(ctx, sub, today); err != nil {
				s.log.Error("failed to process reminder", sl.Err(err), sl.Sub(sub.ID))
			}
		}(sub)
	}
	wg.Wait()
	return nil
}

func (s *Sweeper) process(ctx context.Context, sub *models.Subscription, today time.Time) error {
	channel, err := s.repo.GetChannel(ctx, sub.ChannelID)
	if err != nil {
		return err
	}

	days := s.defaultDays
	if channel.ReminderDays != nil {
		days = *channel.ReminderDays
	}
	if days <= 0 {
		return nil
	}

	remindAt := day.Normalize(sub.EndDate).AddDate(0, 0, -days)
	if !remindAt.Equal(today) {
		return nil
	}

	// Маркер живёт 48 часов: переживает сутки отправки с запасом,
	// но не копится в Redis бесконечно.
	dedupeKey := fmt.Sprintf("reminder:%d:%s", sub.ID, day.Key(today))
	first, err := s.dedupe.MarkOnce(ctx, dedupeKey, 48*time.Hour)
	if err != nil {
		// Redis недоступен: лучше рискнуть повторным сообщением,
		// чем не отправить напоминание вовсе.
		s.log.Warn("reminder dedupe unavailable", sl.Err(err), sl.Sub(sub.ID))
	} else if !first {
		return nil
	}

	user, err := s.repo.GetUser(ctx, sub.UserUID)
	if err != nil {
		return err
	}
	if user.Phone == "" {
		s.events.Record(ctx, models.ActorSystem, models.ActionReminderSkipped,
			"subscription", strconv.Itoa(sub.ID), "no phone number, reminder skipped", map[string]any{
				"user_uid": sub.UserUID,
			})
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.sender.Send(callCtx, user.Phone, ReminderTemplate, map[string]string{
		"channel": channel.Name,
		"days":    strconv.Itoa(days),
		"ends_on": day.Key(sub.EndDate),
	})
	if err != nil {
		metrics.AdapterFailures.WithLabelValues("whatsapp").Inc()
		s.events.Record(ctx, models.ActorSystem, models.ActionReminderFailed,
			"subscription", strconv.Itoa(sub.ID), "failed to send reminder", map[string]any{
				"phone": user.Phone,
				"error": err.Error(),
			})
		return err
	}

	metrics.RemindersSent.Inc()
	s.events.Record(ctx, models.ActorSystem, models.ActionReminderSent,
		"subscription", strconv.Itoa(sub.ID), "expiry reminder sent", map[string]any{
			"phone":       user.Phone,
			"days_before": days,
			"message_ref": result.MessageRef,
			"simulated":   result.Simulated,
		})
	return nil
}
