// Package expiry реализует свип экспирации: находит подписки с закончившимся
// окном доступа, переводит их в expired и удаляет владельцев из каналов.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/metrics"
	"github.com/magabrotheeeer/channel-subs/internal/models"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
)

// Repository определяет методы хранилища для свипа экспирации.
type Repository interface {
	FindSubscriptionsPastEndDate(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error)
}

// EventRecorder пишет события в журнал аудита.
type EventRecorder interface {
	Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any)
}

// Sweeper выполняет свип экспирации.
type Sweeper struct {
	repo    Repository
	events  EventRecorder
	remover *removal.Remover
	workers int
	log     *slog.Logger
	now     func() time.Time
}

// NewSweeper создает новый экземпляр Sweeper.
func NewSweeper(repo Repository, events EventRecorder, remover *removal.Remover,
	workers int, log *slog.Logger) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{
		repo:    repo,
		events:  events,
		remover: remover,
		workers: workers,
		log:     log,
		now:     time.Now,
	}
}

// Sweep обрабатывает все подписки с закончившимся окном. Каждая запись
// обрабатывается независимо: сбой одной не прерывает проход. Ошибка
// возвращается только когда не удалось получить сам список.
func (s *Sweeper) Sweep(ctx context.Context) error {
	const op = "expiry.Sweep"
	metrics.SweepRuns.WithLabelValues("expiry").Inc()

	items, err := s.repo.FindSubscriptionsPastEndDate(ctx, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(items) == 0 {
		return nil
	}
	s.log.Info("expiry sweep started", slog.Int("candidates", len(items)))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, sub := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(sub *models.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.process(ctx, sub); err != nil {
				s.log.Error("failed to process expired subscription", sl.Err(err), sl.Sub(sub.ID))
			}
		}(sub)
	}
	wg.Wait()
	return nil
}

// process переводит одну подписку в expired. Условный перевод решает гонку
// с коррекцией при чтении: событие пишет тот, чей UPDATE затронул строку.
func (s *Sweeper) process(ctx context.Context, sub *models.Subscription) error {
	won, err := s.repo.UpdateSubscriptionStatusIf(ctx, sub.ID, sub.Status, models.StatusExpired)
	if err != nil {
		return err
	}
	if won == 0 {
		return nil
	}

	metrics.SubscriptionsExpired.Inc()
	s.events.Record(ctx, models.ActorSystem, models.ActionSubscriptionExpired,
		"subscription", strconv.Itoa(sub.ID), "subscription expired automatically", map[string]any{
			"previous_status": string(sub.Status),
			"end_date":        sub.EndDate,
		})

	// Брошенные неоплаченные заказы никогда не давали доступ к каналу,
	// удалять там некого.
	if sub.Status != models.StatusActive {
		return nil
	}

	if err := s.remover.Remove(ctx, sub); err != nil {
		metrics.AdapterFailures.WithLabelValues("telegram").Inc()
		return err
	}
	return nil
}
