// Package models содержит доменные структуры подписочного сервиса:
// подписки на платные Telegram-каналы, платёжные транзакции,
// справочники каналов и тарифов, а также записи журнала событий.
package models

import (
	"fmt"
	"time"
)

// SubscriptionStatus описывает статус подписки.
// Допустимые переходы закреплены в сервисном слое, здесь только значения.
type SubscriptionStatus string

const (
	// StatusPendingKyc — подписка создана, ожидается верификация личности.
	StatusPendingKyc SubscriptionStatus = "pending_kyc"
	// StatusPending — подписка создана, ожидается оплата.
	StatusPending SubscriptionStatus = "pending"
	// StatusActive — оплаченная действующая подписка.
	StatusActive SubscriptionStatus = "active"
	// StatusExpired — срок подписки истёк.
	StatusExpired SubscriptionStatus = "expired"
	// StatusRevoked — подписка отозвана администратором.
	StatusRevoked SubscriptionStatus = "revoked"
)

// TransactionStatus описывает статус платёжной транзакции.
// Статус движется только вперёд: created -> authorized/failed -> captured.
type TransactionStatus string

const (
	// TxCreated — заказ создан в платёжном шлюзе, оплата не подтверждена.
	TxCreated TransactionStatus = "created"
	// TxAuthorized — средства заблокированы, но не списаны.
	TxAuthorized TransactionStatus = "authorized"
	// TxCaptured — оплата подтверждена и списана.
	TxCaptured TransactionStatus = "captured"
	// TxFailed — оплата не прошла.
	TxFailed TransactionStatus = "failed"
)

// ActivationAction определяет, как активация платежа влияет на подписки пользователя.
type ActivationAction string

const (
	// ActionNew — первая подписка пользователя на канал.
	ActionNew ActivationAction = "new"
	// ActionRenew — продление: новая подписка с окном от конца предыдущей.
	ActionRenew ActivationAction = "renew"
	// ActionUpgrade — переход на другой тариф того же канала с текущей даты.
	ActionUpgrade ActivationAction = "upgrade"
)

// ParseActivationAction валидирует строковое действие из запроса.
func ParseActivationAction(s string) (ActivationAction, error) {
	switch ActivationAction(s) {
	case ActionNew, ActionRenew, ActionUpgrade:
		return ActivationAction(s), nil
	}
	return "", fmt.Errorf("unknown activation action: %q", s)
}

// Subscription представляет окно доступа одного пользователя к одному каналу
// по одному тарифу. Строка никогда не удаляется, история нужна для аудита.
type Subscription struct {
	ID               int
	UserUID          string             // Владелец подписки
	PlanID           int                // Тариф, по которому куплен доступ
	ChannelID        int                // Канал, к которому открыт доступ
	LinkRef          string             // Ссылка-источник, по которой пришёл пользователь (опционально)
	StartDate        time.Time          // Начало окна доступа
	EndDate          time.Time          // Конец окна доступа, StartDate <= EndDate
	Status           SubscriptionStatus // Текущий статус
	RenewedFromID    *int               // Предыдущая подписка, которую заменила эта (при продлении/апгрейде)
	TelegramMemberID string             // ID участника в Telegram, используется при удалении из канала
}

// Transaction представляет одну попытку оплаты заказа.
type Transaction struct {
	ID             int
	UserUID        string
	PlanID         int
	ChannelID      int
	SubscriptionID *int   // Подписка, активированная этим платежом (после capture)
	Amount         int64  // Сумма в минорных единицах
	Currency       string
	OrderID        string // Внешний ID заказа в шлюзе, уникален и неизменяем
	PaymentID      string // Внешний ID платежа, пустой до capture
	Status         TransactionStatus
	InvoiceRef     string // Ссылка на инвойс шлюза (опционально)
	Action         ActivationAction
	CreatedAt      time.Time
}

// Plan представляет тариф канала.
type Plan struct {
	ID              int
	ChannelID       int
	Name            string
	Price           int64 // Базовая цена в основных единицах валюты
	DiscountedPrice int64 // Цена со скидкой, 0 если скидки нет
	Currency        string
	ValidityDays    int
	IsActive        bool
}

// EffectivePrice возвращает цену тарифа с учётом скидки.
func (p Plan) EffectivePrice() int64 {
	if p.DiscountedPrice > 0 && p.DiscountedPrice < p.Price {
		return p.DiscountedPrice
	}
	return p.Price
}

// Channel представляет платный Telegram-канал.
type Channel struct {
	ID               int
	Name             string
	TelegramChatID   string // Идентификатор чата в Bot API
	ReminderDays     *int   // Переопределение срока напоминания, nil — системный дефолт
	RequiresKyc      bool   // Требуется ли верификация перед оплатой
}

// Coupon представляет купон со скидкой, привязанный к каналу.
type Coupon struct {
	ID              int
	Code            string
	ChannelID       int
	DiscountPercent int
	ValidFrom       time.Time
	ValidTill       time.Time
	IsActive        bool
}

// User представляет владельца подписок. Аутентификация — внешняя,
// здесь хранятся только поля, нужные движку исполнения.
type User struct {
	UID              string
	Name             string
	Phone            string // Телефон для WhatsApp-уведомлений, может быть пустым
	TelegramMemberID string // ID участника Telegram, может быть пустым
	IsAdmin          bool
}
