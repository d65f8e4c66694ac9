// Package sweeper собирает фоновый процесс свипов: экспирация подписок
// и напоминания об окончании работают по расписанию в одном бинарнике.
package sweeper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/channel-subs/internal/app/adapters"
	"github.com/magabrotheeeer/channel-subs/internal/cache"
	"github.com/magabrotheeeer/channel-subs/internal/config"
	"github.com/magabrotheeeer/channel-subs/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/scheduler"
	"github.com/magabrotheeeer/channel-subs/internal/services/events"
	"github.com/magabrotheeeer/channel-subs/internal/services/expiry"
	"github.com/magabrotheeeer/channel-subs/internal/services/reminder"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
	"github.com/magabrotheeeer/channel-subs/internal/storage/repository"
)

// App — фоновый процесс свипов.
type App struct {
	expirySched   *scheduler.Scheduler
	reminderSched *scheduler.Scheduler
	logger        *slog.Logger
}

// New собирает свипы из хранилища, кэша, адаптеров и очереди повторов.
func New(ctx context.Context, cfg *config.Config, db *repository.Storage, logger *slog.Logger) (*App, error) {
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	membership := adapters.NewMembership(cfg.TelegramBot, logger)
	sender := adapters.NewSender(cfg.WhatsApp, logger)

	var retryQueue removal.RetryQueue
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			logger.Warn("rabbitmq unavailable, removal retries disabled", sl.Err(err))
		} else {
			ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetFulfillmentQueues())
			if err != nil {
				logger.Warn("rabbitmq channel setup failed, removal retries disabled", sl.Err(err))
			} else {
				retryQueue = removal.NewAmqpRetryQueue(ch, "fulfillment")
			}
		}
	}

	recorder := events.NewRecorder(db, logger)
	remover := removal.NewRemover(db, membership, recorder, retryQueue, cfg.AdapterTimeout, logger)

	expirySweeper := expiry.NewSweeper(db, recorder, remover, cfg.WorkerCount, logger)
	reminderSweeper := reminder.NewSweeper(db, sender, cacheRedis, recorder,
		cfg.DefaultReminderDays, cfg.WorkerCount, cfg.AdapterTimeout, logger)

	return &App{
		expirySched:   scheduler.New("expiry", cfg.ExpiryInterval, expirySweeper.Sweep, logger),
		reminderSched: scheduler.New("reminder", cfg.ReminderInterval, reminderSweeper.Sweep, logger),
		logger:        logger,
	}, nil
}

// Run запускает оба расписания и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.expirySched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.reminderSched.Run(ctx)
	}()
	wg.Wait()
	a.logger.Info("sweeper stopped")
}
