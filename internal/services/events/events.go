// Package events реализует запись в журнал событий. Для вызывающих запись —
// fire-and-forget, но сбой записи не проглатывается: полный payload события
// уходит в процессный лог, чтобы след не терялся даже при недоступной базе.
package events

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// EventRepository определяет метод добавления записи в журнал.
type EventRepository interface {
	AppendEvent(ctx context.Context, event models.Event) (int, error)
}

// Recorder пишет события в журнал.
type Recorder struct {
	repo EventRepository
	log  *slog.Logger
}

// NewRecorder создает новый экземпляр Recorder.
func NewRecorder(repo EventRepository, log *slog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		log:  log,
	}
}

// Record добавляет запись в журнал событий.
func (r *Recorder) Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any) {
	_, err := r.repo.AppendEvent(ctx, models.Event{
		ActorType:   actor,
		ActionType:  action,
		TargetType:  targetType,
		TargetID:    targetID,
		Description: description,
		Details:     details,
	})
	if err != nil {
		r.log.Error("failed to append event to audit log",
			sl.Err(err),
			slog.String("action", action),
			slog.String("target_type", targetType),
			slog.String("target_id", targetID),
			slog.String("description", description),
			slog.Any("details", details),
		)
	}
}
