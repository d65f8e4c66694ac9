package channelsubs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/channel-subs/internal/app/adapters"
	"github.com/magabrotheeeer/channel-subs/internal/cache"
	"github.com/magabrotheeeer/channel-subs/internal/config"
	"github.com/magabrotheeeer/channel-subs/internal/lib/jwt"
	"github.com/magabrotheeeer/channel-subs/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/migrations"
	"github.com/magabrotheeeer/channel-subs/internal/services/events"
	orderservice "github.com/magabrotheeeer/channel-subs/internal/services/order"
	"github.com/magabrotheeeer/channel-subs/internal/services/removal"
	subservice "github.com/magabrotheeeer/channel-subs/internal/services/subscription"
	"github.com/magabrotheeeer/channel-subs/internal/storage/repository"
)

// App — HTTP API движка исполнения подписок.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New собирает приложение: хранилище, миграции, кэш, адаптеры и сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	gateway := adapters.NewGateway(cfg.Razorpay, logger)
	membership := adapters.NewMembership(cfg.TelegramBot, logger)

	// Очередь повторов опциональна: без брокера отзыв работает,
	// неудачные удаления остаются только в журнале событий.
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

	maker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	orderService := orderservice.New(db, gateway, membership, recorder, cacheRedis, cfg.Razorpay.KeyID, logger)
	subscriptionService := subservice.New(db, recorder, remover, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, maker, orderService, subscriptionService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает сервер и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.DB.Close()
		return err
	}
}
