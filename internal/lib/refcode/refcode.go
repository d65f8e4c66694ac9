// Package refcode генерирует короткие уникальные коды (номера квитанций,
// реферальные метки). Уникальность проверяется через хранилище, количество
// попыток ограничено — открытая рекурсия "пока не повезёт" недопустима.
package refcode

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxAttempts ограничивает число попыток подобрать свободный код.
const maxAttempts = 5

// ErrExhausted возвращается, когда за maxAttempts попыток свободный код не найден.
var ErrExhausted = fmt.Errorf("refcode: no unique code after %d attempts", maxAttempts)

// ExistsFunc проверяет занятость кода в хранилище.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generate возвращает новый код с префиксом, которого ещё нет в хранилище.
func Generate(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	const op = "refcode.Generate"
	for range maxAttempts {
		code := prefix + "_" + random()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func random() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
