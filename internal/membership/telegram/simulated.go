package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Simulated — детерминированная реализация Membership без сетевых вызовов.
type Simulated struct{}

// NewSimulated создаёт симулированный адаптер членства.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// RemoveMember всегда успешен, результат помечен как симулированный.
func (s *Simulated) RemoveMember(_ context.Context, _, _ string) (RemovalResult, error) {
	return RemovalResult{
		Success:   true,
		Simulated: true,
	}, nil
}

// CreateInviteLink возвращает детерминированную ссылку.
func (s *Simulated) CreateInviteLink(_ context.Context, _ string, _ time.Time, _ int) (InviteResult, error) {
	return InviteResult{
		Success:   true,
		Link:      "https://t.me/+sim" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		Simulated: true,
	}, nil
}
