// Package telegram реализует адаптер членства в каналах через Telegram Bot API:
// удаление участника и создание пригласительных ссылок. При отсутствии токена
// бота используется симулированная реализация с тем же контрактом.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Membership описывает контракт управления доступом к каналу.
type Membership interface {
	// RemoveMember удаляет участника из канала.
	RemoveMember(ctx context.Context, memberID, channelRef string) (RemovalResult, error)
	// CreateInviteLink создаёт одноразовую пригласительную ссылку.
	CreateInviteLink(ctx context.Context, channelRef string, expiry time.Time, memberLimit int) (InviteResult, error)
}

// RemovalResult — результат удаления участника.
type RemovalResult struct {
	Success          bool
	WasAlreadyAbsent bool
	Simulated        bool
}

// InviteResult — результат создания пригласительной ссылки.
type InviteResult struct {
	Success   bool
	Link      string
	Simulated bool
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client — клиент реального Bot API.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент Bot API.
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		apiURL:     "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, payload any) (*apiResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}

	url := c.apiURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

// RemoveMember исключает участника: ban, затем unban, чтобы пользователь мог
// вернуться по новой ссылке после повторной оплаты.
func (c *Client) RemoveMember(ctx context.Context, memberID, channelRef string) (RemovalResult, error) {
	// Bot API объявляет user_id как Integer, строка приведёт к Bad Request.
	userID, err := strconv.ParseInt(memberID, 10, 64)
	if err != nil {
		return RemovalResult{}, fmt.Errorf("member id %q is not numeric: %w", memberID, err)
	}

	ban, err := c.call(ctx, "banChatMember", map[string]any{
		"chat_id": channelRef,
		"user_id": userID,
	})
	if err != nil {
		return RemovalResult{}, err
	}
	if !ban.Ok {
		// Bot API отвечает так, когда пользователя уже нет в канале.
		if strings.Contains(ban.Description, "PARTICIPANT_ID_INVALID") ||
			strings.Contains(ban.Description, "USER_NOT_PARTICIPANT") {
			return RemovalResult{Success: true, WasAlreadyAbsent: true}, nil
		}
		return RemovalResult{}, errors.New("banChatMember: " + ban.Description)
	}

	unban, err := c.call(ctx, "unbanChatMember", map[string]any{
		"chat_id": channelRef,
		"user_id": userID,
	})
	if err != nil {
		return RemovalResult{}, err
	}
	if !unban.Ok {
		return RemovalResult{}, errors.New("unbanChatMember: " + unban.Description)
	}
	return RemovalResult{Success: true}, nil
}

// CreateInviteLink создаёт пригласительную ссылку с ограничением срока и числа входов.
func (c *Client) CreateInviteLink(ctx context.Context, channelRef string, expiry time.Time, memberLimit int) (InviteResult, error) {
	payload := map[string]any{
		"chat_id": channelRef,
	}
	if !expiry.IsZero() {
		payload["expire_date"] = expiry.Unix()
	}
	if memberLimit > 0 {
		payload["member_limit"] = memberLimit
	}

	resp, err := c.call(ctx, "createChatInviteLink", payload)
	if err != nil {
		return InviteResult{}, err
	}
	if !resp.Ok {
		return InviteResult{}, errors.New("createChatInviteLink: " + resp.Description)
	}

	var result struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return InviteResult{}, err
	}
	return InviteResult{Success: true, Link: result.InviteLink}, nil
}
