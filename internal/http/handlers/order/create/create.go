// Package create реализует HTTP-обработчик для создания платёжного заказа.
//
// Handler принимает JSON-запрос с тарифом и необязательным купоном, валидирует его,
// извлекает идентификатор пользователя из контекста, вызывает бизнес-логику создания
// заказа и возвращает параметры для клиентского checkout в JSON-формате.
//
// В случае ошибок формируются соответствующие HTTP-ответы с описанием проблемы.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-subs/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-subs/internal/http/response"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/services/order"
)

// Handler управляет HTTP-запросами на создание заказов.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики заказов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики создания заказа.
type Service interface {
	CreateOrder(ctx context.Context, userUID string, planID int, couponCode string) (*order.OrderResult, error)
}

// Request — тело запроса на создание заказа.
type Request struct {
	PlanID     int    `json:"plan_id" validate:"required,min=1"`
	CouponCode string `json:"coupon_code,omitempty"`
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
// @Summary Создать платёжный заказ
// @Description Создает заказ в платёжном шлюзе для покупки подписки на канал по тарифу.
// @Tags Orders
// @Accept  json
// @Produce  json
// @Param request body Request true "Тариф и необязательный купон"
// @Success 200 {object} map[string]any "Параметры заказа для checkout"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Платёжный шлюз недоступен"
// @Router /orders [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.order.create"
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

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.CreateOrder(r.Context(), userUID, req.PlanID, req.CouponCode)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrInvalidPlan), errors.Is(err, order.ErrInvalidAmount):
			log.Error("invalid order request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		case errors.Is(err, order.ErrGatewayUnavailable):
			log.Error("gateway unavailable", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("payment gateway unavailable"))
		default:
			log.Error("failed to create order", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create order"))
		}
		return
	}

	log.Info("order created", slog.String("order_id", result.OrderID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order": result,
	}))
}
