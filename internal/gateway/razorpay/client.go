// Package razorpay реализует адаптер платёжного шлюза: создание заказов,
// проверку подписи подтверждения и получение данных платежа.
// При отсутствии учётных данных используется симулированная реализация
// с тем же контрактом, чтобы логика заказов не зависела от окружения.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Gateway описывает контракт платёжного шлюза для сервиса заказов.
type Gateway interface {
	// CreateOrder создаёт заказ на amount минорных единиц.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	// VerifySignature проверяет подпись подтверждения оплаты.
	VerifySignature(orderID, paymentID, signature string) bool
	// FetchInvoice возвращает данные платежа, nil если платёж не найден.
	FetchInvoice(ctx context.Context, paymentID string) (*Invoice, error)
}

// Client — клиент реального Razorpay API.
type Client struct {
	keyID      string
	keySecret  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент Razorpay.
func NewClient(keyID, keySecret string) *Client {
	return &Client{
		keyID:      keyID,
		keySecret:  keySecret,
		apiURL:     "https://api.razorpay.com/v1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.keyID + ":" + c.keySecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateOrder отправляет запрос на создание заказа в шлюзе.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	req, err := c.newRequest(ctx, "POST", "/orders", CreateOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifySignature проверяет HMAC-SHA256 подпись связки orderID|paymentID.
// Сравнение константное по времени.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return verify(c.keySecret, orderID, paymentID, signature)
}

// FetchInvoice запрашивает данные платежа у шлюза. Возвращает nil без ошибки,
// если платёж не найден.
func (c *Client) FetchInvoice(ctx context.Context, paymentID string) (*Invoice, error) {
	req, err := c.newRequest(ctx, "GET", "/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var invoice Invoice
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func verify(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign считает подпись подтверждения. Используется симулированным шлюзом
// и тестами для формирования корректных доказательств оплаты.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
