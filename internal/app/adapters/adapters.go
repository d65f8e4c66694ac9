// Package adapters выбирает реализацию внешних адаптеров по конфигурации:
// при отсутствии учётных данных вместо реального клиента подставляется
// симулированный с тем же контрактом. Логика выше по стеку не знает,
// в каком режиме она работает.
package adapters

import (
	"log/slog"

	"github.com/magabrotheeeer/channel-subs/internal/config"
	"github.com/magabrotheeeer/channel-subs/internal/gateway/razorpay"
	"github.com/magabrotheeeer/channel-subs/internal/membership/telegram"
	"github.com/magabrotheeeer/channel-subs/internal/messaging/whatsapp"
)

// NewGateway возвращает платёжный шлюз: реальный при заданном key_id,
// иначе симулированный.
func NewGateway(cfg config.Razorpay, log *slog.Logger) razorpay.Gateway {
	if cfg.KeyID == "" {
		log.Warn("razorpay credentials missing, using simulated gateway")
		return razorpay.NewSimulated()
	}
	return razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
}

// NewSender возвращает мессенджер: реальный при заданном api_key,
// иначе симулированный.
func NewSender(cfg config.WhatsApp, log *slog.Logger) whatsapp.Sender {
	if cfg.APIKey == "" {
		log.Warn("whatsapp credentials missing, using simulated sender")
		return whatsapp.NewSimulated()
	}
	return whatsapp.NewClient(cfg.APIURL, cfg.APIKey)
}

// NewMembership возвращает адаптер членства: реальный при заданном токене
// бота, иначе симулированный.
func NewMembership(cfg config.TelegramBot, log *slog.Logger) telegram.Membership {
	if cfg.Token == "" {
		log.Warn("telegram bot token missing, using simulated membership adapter")
		return telegram.NewSimulated()
	}
	return telegram.NewClient(cfg.Token)
}
