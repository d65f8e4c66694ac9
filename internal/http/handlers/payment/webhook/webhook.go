// Package webhook реализует HTTP-обработчик серверных уведомлений платёжного
// шлюза. Вебхук и клиентский возврат проходят через один и тот же
// идемпотентный путь подтверждения: кто пришёл вторым, получает мягкий успех.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-subs/internal/http/response"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/services/order"
)

// Handler управляет уведомлениями платёжного шлюза.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики подтверждения оплаты.
type Service interface {
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*order.ConfirmResult, error)
}

// Request — полезная нагрузка уведомления шлюза.
type Request struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	Event     string `json:"event,omitempty"`
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного шлюза
// @Description Принимает серверное уведомление об оплате и активирует подписку тем же идемпотентным путём, что и клиентское подтверждение.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Param request body Request true "Уведомление шлюза"
// @Success 200 {object} response.Response "Уведомление обработано"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Заказ не найден"
// @Failure 409 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Router /webhooks/payment [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			log.Error("webhook for unknown order", slog.String("order_id", req.OrderID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("order not found"))
		case errors.Is(err, order.ErrSignatureInvalid):
			log.Error("webhook signature invalid", slog.String("order_id", req.OrderID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("payment signature invalid"))
		default:
			log.Error("failed to process webhook", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not process webhook"))
		}
		return
	}

	log.Info("webhook processed",
		slog.String("order_id", req.OrderID),
		slog.Bool("already_done", result.AlreadyDone))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_id": result.SubscriptionID,
		"already_done":    result.AlreadyDone,
	}))
}
