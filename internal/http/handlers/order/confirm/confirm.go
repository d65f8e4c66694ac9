// Package confirm реализует HTTP-обработчик подтверждения оплаты с клиентского
// возврата: браузер пользователя приносит order_id, payment_id и подпись шлюза.
//
// Подтверждение идемпотентно: повторный запрос по уже захваченному заказу
// возвращает существующий результат без побочных эффектов.
package confirm

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

// Handler управляет HTTP-запросами на подтверждение оплаты.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики подтверждения оплаты.
type Service interface {
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*order.ConfirmResult, error)
}

// Request — тело запроса на подтверждение оплаты.
type Request struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
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
// @Summary Подтвердить оплату заказа
// @Description Проверяет подпись шлюза и активирует подписку. Идемпотентен.
// @Tags Orders
// @Accept  json
// @Produce  json
// @Param request body Request true "Идентификаторы заказа, платежа и подпись"
// @Success 200 {object} map[string]any "Активированная подписка и пригласительная ссылка"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Заказ не найден"
// @Failure 409 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при активации"
// @Router /orders/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.order.confirm"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
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
			log.Error("order not found", slog.String("order_id", req.OrderID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("order not found"))
		case errors.Is(err, order.ErrSignatureInvalid):
			log.Error("payment signature invalid", slog.String("order_id", req.OrderID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("payment signature invalid"))
		default:
			log.Error("failed to confirm payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not confirm payment"))
		}
		return
	}

	log.Info("payment confirmed",
		slog.String("order_id", req.OrderID),
		slog.Int("subscription_id", result.SubscriptionID),
		slog.Bool("already_done", result.AlreadyDone))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"confirmation": result,
	}))
}
