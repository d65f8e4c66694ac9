// Бинарник removal-retrier потребляет очередь повторных удалений из каналов:
// задания публикуются свипом и отзывом при сбоях Bot API, обработка с nack
// возвращает сообщение в очередь.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/channel-subs/internal/app/adapters"
	"github.com/magabrotheeeer/channel-subs/internal/config"
	"github.com/magabrotheeeer/channel-subs/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/services/events"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
	"github.com/magabrotheeeer/channel-subs/internal/storage/repository"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting removal-retrier", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetFulfillmentQueues())
	if err != nil {
		logger.Error("failed to setup RabbitMQ channel", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = ch.Close()
	}()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to connect to storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = db.DB.Close()
	}()

	membership := adapters.NewMembership(cfg.TelegramBot, logger)
	recorder := events.NewRecorder(db, logger)
	remover := removal.NewRemover(db, membership, recorder, nil, cfg.AdapterTimeout, logger)

	err = rabbitmq.ConsumeMessages(ctx, ch, rabbitmq.RemovalRetryQueue, func(body []byte) error {
		var task removal.RetryTask
		if err := json.Unmarshal(body, &task); err != nil {
			logger.Error("failed to decode retry task", sl.Err(err))
			// Нечитаемое сообщение возвращать в очередь бессмысленно
			return nil
		}
		return remover.Retry(ctx, task)
	})
	if err != nil {
		logger.Error("failed to start consumer", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("consuming removal retries", slog.String("queue", rabbitmq.RemovalRetryQueue))

	<-ctx.Done()
	logger.Info("removal-retrier stopped gracefully")
}
