package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

const subscriptionColumns = `id, user_uid, plan_id, channel_id, link_ref, start_date,
			      end_date, status, renewed_from_id, telegram_member_id`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	var item models.Subscription
	if err := row.Scan(&item.ID, &item.UserUID, &item.PlanID, &item.ChannelID, &item.LinkRef,
		&item.StartDate, &item.EndDate, &item.Status, &item.RenewedFromID,
		&item.TelegramMemberID); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateSubscription вставляет новую запись подписки и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, plan_id, channel_id, link_ref, start_date,
			      end_date, status, renewed_from_id, telegram_member_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.PlanID, sub.ChannelID, sub.LinkRef, sub.StartDate,
		sub.EndDate, sub.Status, sub.RenewedFromID, sub.TelegramMemberID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ReadSubscription возвращает данные подписки по её ID.
func (s *Storage) ReadSubscription(ctx context.Context, id int) (*models.Subscription, error) {
	const op = "storage.ReadSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions WHERE id = $1`
	result, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateSubscriptionStatusIf выполняет условный перевод статуса подписки.
// Возвращает количество изменённых строк: 0 означает, что другой актор
// успел изменить статус первым — вызывающая сторона не логирует переход.
func (s *Storage) UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error) {
	const op = "storage.UpdateSubscriptionStatusIf"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
		      SET status = $1
		      WHERE id = $2 AND status = $3`
	result, err := s.DB.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ActivateSubscription переводит ожидающую оплаты подписку в active
// и фиксирует окно доступа от момента захвата платежа. Условие на статус
// защищает от гонки с свипом, выметающим брошенные pending-записи.
func (s *Storage) ActivateSubscription(ctx context.Context, id int, start, end time.Time) (int, error) {
	const op = "storage.ActivateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
		      SET status = 'active', start_date = $1, end_date = $2
		      WHERE id = $3 AND status IN ('pending', 'pending_kyc')`
	result, err := s.DB.ExecContext(ctx, query, start, end, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ExtendSubscription добавляет дни к окончанию активной подписки.
func (s *Storage) ExtendSubscription(ctx context.Context, id int, days int) (int, error) {
	const op = "storage.ExtendSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
		      SET end_date = end_date + ($1 || ' days')::interval
		      WHERE id = $2 AND status = 'active'`
	result, err := s.DB.ExecContext(ctx, query, days, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// FindSubscriptionsPastEndDate находит подписки, чьё окно доступа закончилось.
// Брошенные неоплаченные заказы (pending, pending_kyc) выметаются тем же запросом.
func (s *Storage) FindSubscriptionsPastEndDate(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.FindSubscriptionsPastEndDate"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE status IN ('active', 'pending', 'pending_kyc')
			    AND end_date < $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		item, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindActiveSubscriptions возвращает все активные подписки для свипа напоминаний.
func (s *Storage) FindActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	const op = "storage.FindActiveSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE status = 'active'
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		item, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindActiveByUserAndChannel находит активную подписку пользователя на канал.
// Второе возвращаемое значение false означает отсутствие такой подписки.
func (s *Storage) FindActiveByUserAndChannel(ctx context.Context, userUID string, channelID int) (*models.Subscription, bool, error) {
	const op = "storage.FindActiveByUserAndChannel"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1 AND channel_id = $2 AND status = 'active'`
	result, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID, channelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, true, nil
}
