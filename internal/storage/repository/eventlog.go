package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// AppendEvent добавляет запись в журнал событий и возвращает её ID.
// Журнал только дописывается, записи никогда не изменяются.
func (s *Storage) AppendEvent(ctx context.Context, event models.Event) (int, error) {
	const op = "storage.AppendEvent"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO events (actor_type, action_type, target_type, target_id, description, details)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var newID int
	err = s.DB.QueryRowContext(ctx, query,
		event.ActorType, event.ActionType, event.TargetType, event.TargetID,
		event.Description, payload).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListEventsByTarget возвращает события по целевой сущности, свежие первыми.
// Используется для разбора сбоев внешних систем.
func (s *Storage) ListEventsByTarget(ctx context.Context, targetType, targetID string, limit int) ([]*models.Event, error) {
	const op = "storage.ListEventsByTarget"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, actor_type, action_type, target_type, target_id, description, details, created_at
			  FROM events
			  WHERE target_type = $1 AND target_id = $2
			  ORDER BY id DESC
			  LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, targetType, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Event
	for rows.Next() {
		var item models.Event
		var payload []byte
		if err := rows.Scan(&item.ID, &item.ActorType, &item.ActionType, &item.TargetType,
			&item.TargetID, &item.Description, &payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := json.Unmarshal(payload, &item.Details); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
