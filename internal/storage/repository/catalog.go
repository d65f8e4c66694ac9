package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// GetPlan возвращает тариф по ID.
func (s *Storage) GetPlan(ctx context.Context, id int) (*models.Plan, error) {
	const op = "storage.GetPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, channel_id, name, price, discounted_price, currency, validity_days, is_active
			  FROM plans WHERE id = $1`
	var item models.Plan
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.ChannelID, &item.Name,
		&item.Price, &item.DiscountedPrice, &item.Currency, &item.ValidityDays, &item.IsActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &item, nil
}

// GetChannel возвращает канал по ID.
func (s *Storage) GetChannel(ctx context.Context, id int) (*models.Channel, error) {
	const op = "storage.GetChannel"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, telegram_chat_id, reminder_days, requires_kyc
			  FROM channels WHERE id = $1`
	var item models.Channel
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Name,
		&item.TelegramChatID, &item.ReminderDays, &item.RequiresKyc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &item, nil
}

// GetUser возвращает пользователя по UID.
func (s *Storage) GetUser(ctx context.Context, uid string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, name, phone, telegram_member_id, is_admin
			  FROM users WHERE uid = $1`
	var item models.User
	err := s.DB.QueryRowContext(ctx, query, uid).Scan(&item.UID, &item.Name,
		&item.Phone, &item.TelegramMemberID, &item.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &item, nil
}

// FindCoupon находит действующий купон канала по коду.
// Второе возвращаемое значение false означает, что купона нет или он неприменим.
func (s *Storage) FindCoupon(ctx context.Context, channelID int, code string, now time.Time) (*models.Coupon, bool, error) {
	const op = "storage.FindCoupon"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, channel_id, discount_percent, valid_from, valid_till, is_active
			  FROM coupons
			  WHERE channel_id = $1 AND code = $2 AND is_active = true
			    AND valid_from <= $3 AND valid_till >= $3`
	var item models.Coupon
	err := s.DB.QueryRowContext(ctx, query, channelID, code, now).Scan(&item.ID, &item.Code,
		&item.ChannelID, &item.DiscountPercent, &item.ValidFrom, &item.ValidTill, &item.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &item, true, nil
}
