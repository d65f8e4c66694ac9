package models

import "time"

// ActorType описывает, кто инициировал событие.
type ActorType string

const (
	// ActorSystem — автоматические процессы (свипы, вебхуки).
	ActorSystem ActorType = "System"
	// ActorUser — действие пользователя.
	ActorUser ActorType = "User"
	// ActorAdmin — действие администратора.
	ActorAdmin ActorType = "Admin"
)

// Типы действий журнала событий. Журнал — единственный источник правды
// о том, что было предпринято при сбоях внешних систем.
const (
	ActionOrderCreated         = "ORDER_CREATED"
	ActionOrderCreateFailed    = "ORDER_CREATE_FAILED"
	ActionPaymentCaptured      = "PAYMENT_CAPTURED"
	ActionPaymentVerifyFailed  = "PAYMENT_VERIFICATION_FAILED"
	ActionActivationFailed     = "ACTIVATION_FAILED"
	ActionSubscriptionActive   = "SUBSCRIPTION_ACTIVATED"
	ActionSubscriptionExpired  = "SUBSCRIPTION_EXPIRED"
	ActionSubscriptionExtended = "SUBSCRIPTION_EXTENDED"
	ActionSubscriptionRevoked  = "SUBSCRIPTION_REVOKED"
	ActionMemberRemoved        = "MEMBER_REMOVED"
	ActionMemberRemovalFailed  = "MEMBER_REMOVAL_FAILED"
	ActionMemberRemovalSkipped = "MEMBER_REMOVAL_SKIPPED"
	ActionInviteLinkCreated    = "INVITE_LINK_CREATED"
	ActionReminderSent         = "REMINDER_SENT"
	ActionReminderFailed       = "REMINDER_FAILED"
	ActionReminderSkipped      = "REMINDER_SKIPPED"
)

// Event представляет запись журнала событий. Записи только добавляются,
// никогда не изменяются и не удаляются.
type Event struct {
	ID          int
	ActorType   ActorType
	ActionType  string
	TargetType  string // Тип сущности: subscription, transaction, ...
	TargetID    string
	Description string
	Details     map[string]any // Структурированные детали, сериализуются в JSONB
	CreatedAt   time.Time
}
