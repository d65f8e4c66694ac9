// Package channelsubs предоставляет сборку и маршруты HTTP API
// движка исполнения подписок.
package channelsubs

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	orderconfirm "github.com/magabrotheeeer/channel-subs/internal/http/handlers/order/confirm"
	ordercreate "github.com/magabrotheeeer/channel-subs/internal/http/handlers/order/create"
	orderupgrade "github.com/magabrotheeeer/channel-subs/internal/http/handlers/order/upgrade"
	"github.com/magabrotheeeer/channel-subs/internal/http/handlers/health"
	"github.com/magabrotheeeer/channel-subs/internal/http/handlers/payment/webhook"
	subextend "github.com/magabrotheeeer/channel-subs/internal/http/handlers/subscription/extend"
	subhistory "github.com/magabrotheeeer/channel-subs/internal/http/handlers/subscription/history"
	subread "github.com/magabrotheeeer/channel-subs/internal/http/handlers/subscription/read"
	subrevoke "github.com/magabrotheeeer/channel-subs/internal/http/handlers/subscription/revoke"
	"github.com/magabrotheeeer/channel-subs/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-subs/internal/lib/jwt"
	orderservice "github.com/magabrotheeeer/channel-subs/internal/services/order"
	subservice "github.com/magabrotheeeer/channel-subs/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, maker jwt.Maker,
	orderService *orderservice.Service, subscriptionService *subservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/orders", ordercreate.New(logger, orderService).ServeHTTP)
			r.Post("/orders/confirm", orderconfirm.New(logger, orderService).ServeHTTP)
			r.Get("/subscriptions/{id}", subread.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions/{id}/upgrade", orderupgrade.New(logger, orderService).ServeHTTP)

			// Административные операции
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnlyMiddleware(logger))
				r.Post("/admin/subscriptions/{id}/extend", subextend.New(logger, subscriptionService).ServeHTTP)
				r.Post("/admin/subscriptions/{id}/revoke", subrevoke.New(logger, subscriptionService).ServeHTTP)
				r.Get("/admin/subscriptions/{id}/events", subhistory.New(logger, subscriptionService).ServeHTTP)
			})
		})

		// Webhook endpoint (подпись проверяется внутри, без JWT)
		r.Post("/webhooks/payment", webhook.New(logger, orderService).ServeHTTP)

		r.Get("/health", health.New(logger).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
