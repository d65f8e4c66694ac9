// Package removal реализует удаление участника из платного канала после
// истечения или отзыва подписки. Вызывается из свипа экспирации и из
// админского отзыва; неудачные попытки уходят в очередь повторов.
package removal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-subs/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/membership/telegram"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// Repository определяет методы хранилища для разрешения идентификаторов.
type Repository interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetChannel(ctx context.Context, id int) (*models.Channel, error)
}

// EventRecorder пишет события в журнал аудита.
type EventRecorder interface {
	Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any)
}

// RetryTask — задание на повторное удаление участника.
type RetryTask struct {
	SubscriptionID int    `json:"subscription_id"`
	MemberID       string `json:"member_id"`
	ChannelRef     string `json:"channel_ref"`
	Attempt        int    `json:"attempt"`
}

// RetryQueue публикует задания на повтор. Может отсутствовать (nil),
// тогда неудачные удаления остаются только в журнале событий.
type RetryQueue interface {
	Publish(task RetryTask) error
}

// AmqpRetryQueue — очередь повторов поверх RabbitMQ.
type AmqpRetryQueue struct {
	ch       *amqp.Channel
	exchange string
}

// NewAmqpRetryQueue создает новый экземпляр AmqpRetryQueue.
func NewAmqpRetryQueue(ch *amqp.Channel, exchange string) *AmqpRetryQueue {
	return &AmqpRetryQueue{ch: ch, exchange: exchange}
}

// Publish отправляет задание в очередь повторов.
func (q *AmqpRetryQueue) Publish(task RetryTask) error {
	return rabbitmq.PublishMessage(q.ch, q.exchange, rabbitmq.RemovalRetryKey, task)
}

// Remover удаляет участников из каналов и фиксирует исход в журнале.
type Remover struct {
	repo       Repository
	membership telegram.Membership
	events     EventRecorder
	retry      RetryQueue
	timeout    time.Duration
	log        *slog.Logger
}

// NewRemover создает новый экземпляр Remover. retry может быть nil.
func NewRemover(repo Repository, membership telegram.Membership, events EventRecorder,
	retry RetryQueue, timeout time.Duration, log *slog.Logger) *Remover {
	return &Remover{
		repo:       repo,
		membership: membership,
		events:     events,
		retry:      retry,
		timeout:    timeout,
		log:        log,
	}
}

// Remove удаляет владельца подписки из канала. Отсутствие идентификаторов
// Telegram — не ошибка: пользователь мог так и не вступить в канал, тогда
// пишется MEMBER_REMOVAL_SKIPPED. Сбой Bot API возвращается вызывающему,
// но переход статуса подписки к этому моменту уже зафиксирован и не откатывается.
func (r *Remover) Remove(ctx context.Context, sub *models.Subscription) error {
	const op = "removal.Remove"

	memberID := sub.TelegramMemberID
	if memberID == "" {
		user, err := r.repo.GetUser(ctx, sub.UserUID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		memberID = user.TelegramMemberID
	}

	channel, err := r.repo.GetChannel(ctx, sub.ChannelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if memberID == "" || channel.TelegramChatID == "" {
		r.events.Record(ctx, models.ActorSystem, models.ActionMemberRemovalSkipped,
			"subscription", strconv.Itoa(sub.ID), "no telegram identifiers, removal skipped", map[string]any{
				"user_uid":   sub.UserUID,
				"channel_id": sub.ChannelID,
			})
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.membership.RemoveMember(callCtx, memberID, channel.TelegramChatID)
	if err != nil {
		r.events.Record(ctx, models.ActorSystem, models.ActionMemberRemovalFailed,
			"subscription", strconv.Itoa(sub.ID), "failed to remove member from channel", map[string]any{
				"member_id":   memberID,
				"channel_ref": channel.TelegramChatID,
				"error":       err.Error(),
			})
		r.enqueueRetry(sub.ID, memberID, channel.TelegramChatID)
		return fmt.Errorf("%s: %w", op, err)
	}

	r.events.Record(ctx, models.ActorSystem, models.ActionMemberRemoved,
		"subscription", strconv.Itoa(sub.ID), "member removed from channel", map[string]any{
			"member_id":          memberID,
			"channel_ref":        channel.TelegramChatID,
			"was_already_absent": result.WasAlreadyAbsent,
			"simulated":          result.Simulated,
		})
	return nil
}

// Retry выполняет задание из очереди повторов.
func (r *Remover) Retry(ctx context.Context, task RetryTask) error {
	const op = "removal.Retry"

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.membership.RemoveMember(callCtx, task.MemberID, task.ChannelRef)
	if err != nil {
		r.events.Record(ctx, models.ActorSystem, models.ActionMemberRemovalFailed,
			"subscription", strconv.Itoa(task.SubscriptionID), "retry failed to remove member", map[string]any{
				"member_id":   task.MemberID,
				"channel_ref": task.ChannelRef,
				"attempt":     task.Attempt,
				"error":       err.Error(),
			})
		return fmt.Errorf("%s: %w", op, err)
	}

	r.events.Record(ctx, models.ActorSystem, models.ActionMemberRemoved,
		"subscription", strconv.Itoa(task.SubscriptionID), "member removed on retry", map[string]any{
			"member_id":          task.MemberID,
			"channel_ref":        task.ChannelRef,
			"attempt":            task.Attempt,
			"was_already_absent": result.WasAlreadyAbsent,
		})
	return nil
}

func (r *Remover) enqueueRetry(subID int, memberID, channelRef string) {
	if r.retry == nil {
		return
	}
	task := RetryTask{
		SubscriptionID: subID,
		MemberID:       memberID,
		ChannelRef:     channelRef,
		Attempt:        1,
	}
	if err := r.retry.Publish(task); err != nil {
		r.log.Error("failed to enqueue removal retry", sl.Err(err), sl.Sub(subID))
	}
}
