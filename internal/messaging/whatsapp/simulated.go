package whatsapp

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Simulated — детерминированная реализация Sender без сетевых вызовов.
type Simulated struct{}

// NewSimulated создаёт симулированный мессенджер.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Send всегда успешен, результат помечен как симулированный.
func (s *Simulated) Send(_ context.Context, _, _ string, _ map[string]string) (SendResult, error) {
	return SendResult{
		Success:    true,
		MessageRef: "msg_sim_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14],
		Simulated:  true,
	}, nil
}
