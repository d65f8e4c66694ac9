// Package scheduler запускает фоновые задачи по расписанию.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
)

// Job — одна итерация фоновой задачи.
type Job func(ctx context.Context) error

// Scheduler выполняет задачу сразу при старте и далее с заданным интервалом.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	log      *slog.Logger
}

// New создает новый экземпляр Scheduler.
func New(name string, interval time.Duration, job Job, log *slog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		log:      log,
	}
}

// Run блокируется до отмены контекста. Ошибка итерации логируется,
// расписание не прерывается.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		slog.String("job", s.name), slog.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", slog.String("job", s.name))
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.job(ctx); err != nil {
		s.log.Error("job run failed", slog.String("job", s.name), sl.Err(err))
	}
}
