// Package whatsapp реализует адаптер отправки шаблонных сообщений через
// WhatsApp-совместимый API. При отсутствии учётных данных используется
// симулированная реализация с тем же контрактом.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Sender описывает контракт мессенджера для свипа напоминаний.
type Sender interface {
	Send(ctx context.Context, phone, template string, params map[string]string) (SendResult, error)
}

// SendResult — результат отправки сообщения.
type SendResult struct {
	Success    bool
	MessageRef string // Идентификатор сообщения на стороне API
	Simulated  bool
}

type sendRequest struct {
	Phone    string            `json:"phone"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params,omitempty"`
}

type sendResponse struct {
	Success    bool   `json:"success"`
	MessageRef string `json:"message_ref"`
}

// Client — клиент реального messaging API.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент мессенджера.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send отправляет шаблонное сообщение на номер phone.
func (c *Client) Send(ctx context.Context, phone, template string, params map[string]string) (SendResult, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(sendRequest{
		Phone:    phone,
		Template: template,
		Params:   params,
	}); err != nil {
		return SendResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/messages", &buf)
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return SendResult{}, errors.New("unexpected status: " + resp.Status)
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SendResult{}, err
	}
	return SendResult{
		Success:    body.Success,
		MessageRef: body.MessageRef,
	}, nil
}
