// Package order содержит бизнес-логику заказов и активации подписок:
// создание платёжного заказа, идемпотентное подтверждение оплаты
// и продление/апгрейд существующих подписок.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/gateway/razorpay"
	"github.com/magabrotheeeer/channel-subs/internal/lib/refcode"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/membership/telegram"
	"github.com/magabrotheeeer/channel-subs/internal/metrics"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// Ошибки, возвращаемые сервису вызывающим слоем.
var (
	// ErrInvalidPlan — тариф не найден или неактивен.
	ErrInvalidPlan = errors.New("plan not found or inactive")
	// ErrInvalidAmount — вычисленная сумма заказа не положительна.
	ErrInvalidAmount = errors.New("computed order amount is not positive")
	// ErrGatewayUnavailable — шлюз не смог создать заказ.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrSignatureInvalid — подпись подтверждения оплаты не сошлась.
	ErrSignatureInvalid = errors.New("payment signature invalid")
	// ErrOrderNotFound — заказ с таким ID не существует.
	ErrOrderNotFound = errors.New("order not found")
	// ErrChannelMismatch — новый тариф принадлежит другому каналу.
	ErrChannelMismatch = errors.New("plan belongs to a different channel")
	// ErrForeignSubscription — подписка принадлежит другому пользователю.
	ErrForeignSubscription = errors.New("subscription belongs to another user")
)

// Repository определяет методы хранилища, нужные сервису заказов.
type Repository interface {
	GetPlan(ctx context.Context, id int) (*models.Plan, error)
	GetChannel(ctx context.Context, id int) (*models.Channel, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
	FindCoupon(ctx context.Context, channelID int, code string, now time.Time) (*models.Coupon, bool, error)
	ReceiptExists(ctx context.Context, receipt string) (bool, error)

	CreateTransaction(ctx context.Context, tx models.Transaction) (int, error)
	FindTransactionByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error)
	CaptureTransactionIf(ctx context.Context, orderID, paymentID string) (int, error)
	LinkTransactionSubscription(ctx context.Context, txID, subscriptionID int) error
	SetTransactionInvoice(ctx context.Context, txID int, invoiceRef string) error

	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	ReadSubscription(ctx context.Context, id int) (*models.Subscription, error)
	ActivateSubscription(ctx context.Context, id int, start, end time.Time) (int, error)
	FindActiveByUserAndChannel(ctx context.Context, userUID string, channelID int) (*models.Subscription, bool, error)
	UpdateSubscriptionStatusIf(ctx context.Context, id int, from, to models.SubscriptionStatus) (int, error)
}

// EventRecorder пишет события в журнал аудита.
type EventRecorder interface {
	Record(ctx context.Context, actor models.ActorType, action, targetType, targetID, description string, details map[string]any)
}

// Cache описывает методы для кэширования справочных данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Service реализует бизнес-логику заказов и активации.
type Service struct {
	repo       Repository
	gateway    razorpay.Gateway
	membership telegram.Membership
	events     EventRecorder
	cache      Cache
	keyRef     string // публичный ключ шлюза для клиентского checkout
	log        *slog.Logger
	now        func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, gateway razorpay.Gateway, membership telegram.Membership,
	events EventRecorder, cache Cache, keyRef string, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		gateway:    gateway,
		membership: membership,
		events:     events,
		cache:      cache,
		keyRef:     keyRef,
		log:        log,
		now:        time.Now,
	}
}

// OrderResult возвращается при создании заказа.
type OrderResult struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"` // в минорных единицах
	Currency string `json:"currency"`
	KeyRef   string `json:"gateway_key_ref"`
}

// ConfirmResult возвращается при подтверждении оплаты.
type ConfirmResult struct {
	SubscriptionID int    `json:"subscription_id"`
	InviteLink     string `json:"invite_link,omitempty"`
	AlreadyDone    bool   `json:"already_done,omitempty"`
}

// CreateOrder создает заказ в шлюзе, транзакцию в статусе created
// и подписку в статусе pending (pending_kyc для каналов с верификацией).
func (s *Service) CreateOrder(ctx context.Context, userUID string, planID int, couponCode string) (*OrderResult, error) {
	const op = "order.CreateOrder"

	plan, err := s.getPlan(ctx, planID)
	if err != nil || !plan.IsActive {
		return nil, ErrInvalidPlan
	}
	channel, err := s.repo.GetChannel(ctx, plan.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	amount, err := s.computeAmount(ctx, plan, couponCode)
	if err != nil {
		return nil, err
	}

	receipt, err := refcode.Generate(ctx, "rcpt", s.repo.ReceiptExists)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, amount, plan.Currency, receipt, map[string]string{
		"user_uid": userUID,
		"plan_id":  strconv.Itoa(plan.ID),
	})
	if err != nil {
		s.events.Record(ctx, models.ActorSystem, models.ActionOrderCreateFailed,
			"transaction", receipt, "gateway failed to create order", map[string]any{
				"user_uid": userUID,
				"plan_id":  plan.ID,
				"amount":   amount,
				"error":    err.Error(),
			})
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	status := models.StatusPending
	if channel.RequiresKyc {
		status = models.StatusPendingKyc
	}
	start := s.now()
	subID, err := s.repo.CreateSubscription(ctx, models.Subscription{
		UserUID:          userUID,
		PlanID:           plan.ID,
		ChannelID:        channel.ID,
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, plan.ValidityDays),
		Status:           status,
		TelegramMemberID: user.TelegramMemberID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	txID, err := s.repo.CreateTransaction(ctx, models.Transaction{
		UserUID:        userUID,
		PlanID:         plan.ID,
		ChannelID:      channel.ID,
		SubscriptionID: &subID,
		Amount:         amount,
		Currency:       plan.Currency,
		OrderID:        gwOrder.ID,
		Status:         models.TxCreated,
		InvoiceRef:     receipt,
		Action:         models.ActionNew,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.events.Record(ctx, models.ActorUser, models.ActionOrderCreated,
		"transaction", strconv.Itoa(txID), "payment order created", map[string]any{
			"order_id": gwOrder.ID,
			"user_uid": userUID,
			"plan_id":  plan.ID,
			"amount":   amount,
		})
	s.log.Info("created payment order",
		slog.String("order_id", gwOrder.ID), slog.Int64("amount", amount))

	return &OrderResult{
		OrderID:  gwOrder.ID,
		Amount:   amount,
		Currency: plan.Currency,
		KeyRef:   s.keyRef,
	}, nil
}

// InitiateUpgrade создает заказ на продление или апгрейд существующей подписки.
// Новый тариф обязан принадлежать тому же каналу.
func (s *Service) InitiateUpgrade(ctx context.Context, userUID string, subscriptionID, newPlanID int, action models.ActivationAction) (*OrderResult, error) {
	const op = "order.InitiateUpgrade"

	sub, err := s.repo.ReadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.UserUID != userUID {
		return nil, ErrForeignSubscription
	}

	plan, err := s.getPlan(ctx, newPlanID)
	if err != nil || !plan.IsActive {
		return nil, ErrInvalidPlan
	}
	if plan.ChannelID != sub.ChannelID {
		return nil, ErrChannelMismatch
	}

	amount, err := s.computeAmount(ctx, plan, "")
	if err != nil {
		return nil, err
	}

	receipt, err := refcode.Generate(ctx, "rcpt", s.repo.ReceiptExists)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, amount, plan.Currency, receipt, map[string]string{
		"user_uid":        userUID,
		"plan_id":         strconv.Itoa(plan.ID),
		"subscription_id": strconv.Itoa(subscriptionID),
		"action":          string(action),
	})
	if err != nil {
		s.events.Record(ctx, models.ActorSystem, models.ActionOrderCreateFailed,
			"subscription", strconv.Itoa(subscriptionID), "gateway failed to create upgrade order", map[string]any{
				"user_uid": userUID,
				"plan_id":  plan.ID,
				"action":   string(action),
				"error":    err.Error(),
			})
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	txID, err := s.repo.CreateTransaction(ctx, models.Transaction{
		UserUID:    userUID,
		PlanID:     plan.ID,
		ChannelID:  plan.ChannelID,
		Amount:     amount,
		Currency:   plan.Currency,
		OrderID:    gwOrder.ID,
		Status:     models.TxCreated,
		InvoiceRef: receipt,
		Action:     action,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.events.Record(ctx, models.ActorUser, models.ActionOrderCreated,
		"transaction", strconv.Itoa(txID), "upgrade order created", map[string]any{
			"order_id": gwOrder.ID,
			"action":   string(action),
		})

	return &OrderResult{
		OrderID:  gwOrder.ID,
		Amount:   amount,
		Currency: plan.Currency,
		KeyRef:   s.keyRef,
	}, nil
}

// ConfirmPayment проверяет подпись подтверждения и активирует подписку.
// Идемпотентен: повторное подтверждение уже захваченного заказа возвращает
// существующий результат и не создаёт вторую подписку, а захваченный заказ
// с оборвавшейся активацией доводится до конца. Вебхук и клиентский
// возврат проходят через этот же метод.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*ConfirmResult, error) {
	const op = "order.ConfirmPayment"

	tx, found, err := s.repo.FindTransactionByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, ErrOrderNotFound
	}

	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		s.events.Record(ctx, models.ActorSystem, models.ActionPaymentVerifyFailed,
			"transaction", strconv.Itoa(tx.ID), "payment signature mismatch", map[string]any{
				"order_id":   orderID,
				"payment_id": paymentID,
				"user_uid":   tx.UserUID,
			})
		return nil, ErrSignatureInvalid
	}

	captured, err := s.repo.CaptureTransactionIf(ctx, orderID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if captured == 0 {
		existing, found, err := s.repo.FindTransactionByOrderID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !found {
			return nil, ErrOrderNotFound
		}
		doneID, done, err := s.activationDone(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if done {
			// Заказ уже захвачен параллельным подтверждением — мягкий успех.
			s.log.Info("duplicate payment confirmation ignored", slog.String("order_id", orderID))
			return &ConfirmResult{SubscriptionID: doneID, AlreadyDone: true}, nil
		}
		// Захват состоялся раньше, но активация тогда оборвалась.
		// Дожимаем её, иначе оплаченный заказ навсегда останется без подписки.
		s.log.Warn("captured transaction without activation, resuming",
			slog.String("order_id", orderID))
		tx = existing
	}

	subID, err := s.activate(ctx, tx)
	if err != nil {
		s.events.Record(ctx, models.ActorSystem, models.ActionActivationFailed,
			"transaction", strconv.Itoa(tx.ID), "activation failed after capture", map[string]any{
				"order_id":   orderID,
				"payment_id": paymentID,
				"action":     string(tx.Action),
				"error":      err.Error(),
			})
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.LinkTransactionSubscription(ctx, tx.ID, subID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Инвойс — вспомогательная информация, его недоступность не блокирует активацию.
	if invoice, err := s.gateway.FetchInvoice(ctx, paymentID); err == nil && invoice != nil && invoice.PaymentID != "" {
		if err := s.repo.SetTransactionInvoice(ctx, tx.ID, invoice.PaymentID); err != nil {
			s.log.Warn("failed to store invoice ref", sl.Err(err))
		}
	}

	metrics.PaymentsCaptured.Inc()
	s.events.Record(ctx, models.ActorSystem, models.ActionPaymentCaptured,
		"transaction", strconv.Itoa(tx.ID), "payment captured", map[string]any{
			"order_id":        orderID,
			"payment_id":      paymentID,
			"subscription_id": subID,
		})
	s.events.Record(ctx, models.ActorSystem, models.ActionSubscriptionActive,
		"subscription", strconv.Itoa(subID), "subscription activated", map[string]any{
			"order_id": orderID,
			"action":   string(tx.Action),
		})

	result := &ConfirmResult{SubscriptionID: subID}
	result.InviteLink = s.issueInviteLink(ctx, tx.ChannelID, subID)
	return result, nil
}

// activationDone сообщает, завершилась ли активация захваченной транзакции,
// и ID активированной подписки. Продления и апгрейды связываются с подпиской
// только после активации; новые заказы ссылаются на pending-строку ещё
// с момента создания, поэтому для них проверяется статус самой подписки.
func (s *Service) activationDone(ctx context.Context, tx *models.Transaction) (int, bool, error) {
	if tx.SubscriptionID == nil {
		return 0, false, nil
	}
	if tx.Action != models.ActionNew {
		return *tx.SubscriptionID, true, nil
	}
	sub, err := s.repo.ReadSubscription(ctx, *tx.SubscriptionID)
	if err != nil {
		return 0, false, err
	}
	switch sub.Status {
	case models.StatusPending, models.StatusPendingKyc:
		return 0, false, nil
	}
	return sub.ID, true, nil
}

// activate применяет действие активации. Закрытый enum вместо строкового
// диспатча: каждый вариант и его побочные эффекты перечислены здесь.
func (s *Service) activate(ctx context.Context, tx *models.Transaction) (int, error) {
	plan, err := s.getPlan(ctx, tx.PlanID)
	if err != nil {
		return 0, err
	}
	now := s.now()

	switch tx.Action {
	case models.ActionNew:
		if tx.SubscriptionID == nil {
			return 0, fmt.Errorf("transaction %d has no pending subscription", tx.ID)
		}
		subID := *tx.SubscriptionID
		if _, err := s.repo.ActivateSubscription(ctx, subID, now, now.AddDate(0, 0, plan.ValidityDays)); err != nil {
			return 0, err
		}
		return subID, nil

	case models.ActionRenew, models.ActionUpgrade:
		prior, found, err := s.repo.FindActiveByUserAndChannel(ctx, tx.UserUID, tx.ChannelID)
		if err != nil {
			return 0, err
		}

		start := now
		var renewedFrom *int
		if found {
			// Предыдущая активная подписка вытесняется, не реактивируется.
			if _, err := s.repo.UpdateSubscriptionStatusIf(ctx, prior.ID, models.StatusActive, models.StatusExpired); err != nil {
				return 0, err
			}
			renewedFrom = &prior.ID
			if tx.Action == models.ActionRenew && prior.EndDate.After(now) {
				start = prior.EndDate
			}
		}

		user, err := s.repo.GetUser(ctx, tx.UserUID)
		if err != nil {
			return 0, err
		}
		return s.repo.CreateSubscription(ctx, models.Subscription{
			UserUID:          tx.UserUID,
			PlanID:           plan.ID,
			ChannelID:        tx.ChannelID,
			StartDate:        start,
			EndDate:          start.AddDate(0, 0, plan.ValidityDays),
			Status:           models.StatusActive,
			RenewedFromID:    renewedFrom,
			TelegramMemberID: user.TelegramMemberID,
		})
	}

	return 0, fmt.Errorf("unknown activation action: %q", tx.Action)
}

func (s *Service) issueInviteLink(ctx context.Context, channelID, subID int) string {
	channel, err := s.repo.GetChannel(ctx, channelID)
	if err != nil || channel.TelegramChatID == "" {
		return ""
	}
	invite, err := s.membership.CreateInviteLink(ctx, channel.TelegramChatID, s.now().Add(24*time.Hour), 1)
	if err != nil || !invite.Success {
		s.log.Warn("failed to create invite link",
			slog.Int("channel_id", channelID), sl.Sub(subID))
		return ""
	}
	s.events.Record(ctx, models.ActorSystem, models.ActionInviteLinkCreated,
		"subscription", strconv.Itoa(subID), "invite link issued", map[string]any{
			"channel_id": channelID,
			"simulated":  invite.Simulated,
		})
	return invite.Link
}

// computeAmount считает сумму заказа в минорных единицах с учётом скидки
// тарифа и купона канала.
func (s *Service) computeAmount(ctx context.Context, plan *models.Plan, couponCode string) (int64, error) {
	price := plan.EffectivePrice()
	if couponCode != "" {
		coupon, found, err := s.repo.FindCoupon(ctx, plan.ChannelID, couponCode, s.now())
		if err != nil {
			return 0, err
		}
		if found {
			price = price * int64(100-coupon.DiscountPercent) / 100
		}
	}
	if price <= 0 {
		return 0, ErrInvalidAmount
	}
	return price * 100, nil
}

func (s *Service) getPlan(ctx context.Context, planID int) (*models.Plan, error) {
	cacheKey := fmt.Sprintf("plan:%d", planID)
	var cached models.Plan
	if found, err := s.cache.Get(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(cacheKey, plan, time.Hour); err != nil {
		s.log.Warn("failed to cache plan", slog.String("key", cacheKey), sl.Err(err))
	}
	return plan, nil
}
