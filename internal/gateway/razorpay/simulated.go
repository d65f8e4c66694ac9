package razorpay

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// SimulatedSecret — ключ подписи симулированного шлюза. Фиксированный,
// чтобы тесты могли формировать корректные доказательства оплаты.
const SimulatedSecret = "simulated-secret"

// Simulated — детерминированная реализация Gateway без сетевых вызовов.
// Используется, когда учётные данные шлюза не заданы.
type Simulated struct{}

// NewSimulated создаёт симулированный шлюз.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// CreateOrder возвращает заказ с локально сгенерированным ID.
func (s *Simulated) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*Order, error) {
	return &Order{
		ID:       "order_sim_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14],
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

// VerifySignature проверяет подпись, посчитанную с SimulatedSecret.
func (s *Simulated) VerifySignature(orderID, paymentID, signature string) bool {
	return verify(SimulatedSecret, orderID, paymentID, signature)
}

// FetchInvoice возвращает детерминированный успешный платёж.
func (s *Simulated) FetchInvoice(_ context.Context, paymentID string) (*Invoice, error) {
	return &Invoice{
		PaymentID: paymentID,
		Status:    "captured",
		Method:    "simulated",
	}, nil
}
