package razorpay

// CreateOrderRequest представляет запрос на создание заказа.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`   // сумма в минорных единицах, например 80000 = 800.00
	Currency string            `json:"currency"` // валюта, например "INR"
	Receipt  string            `json:"receipt"`  // внутренний номер квитанции
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order представляет заказ, созданный в шлюзе.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Invoice представляет данные платежа, полученные от шлюза после оплаты.
type Invoice struct {
	PaymentID string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
}
