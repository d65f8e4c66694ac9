// Package upgrade реализует HTTP-обработчик создания заказа на продление
// или апгрейд существующей подписки. Новый тариф обязан принадлежать
// тому же каналу, что и исходная подписка.
package upgrade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-subs/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-subs/internal/http/response"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/models"
	"github.com/magabrotheeeer/channel-subs/internal/services/order"
)

// Handler управляет HTTP-запросами на продление и апгрейд подписок.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики продления и апгрейда.
type Service interface {
	InitiateUpgrade(ctx context.Context, userUID string, subscriptionID, newPlanID int, action models.ActivationAction) (*order.OrderResult, error)
}

// Request — тело запроса на продление или апгрейд.
type Request struct {
	PlanID int    `json:"plan_id" validate:"required,min=1"`
	Action string `json:"action" validate:"required,oneof=renew upgrade"`
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
// @Summary Продлить или повысить подписку
// @Description Создает платёжный заказ на продление или апгрейд подписки в рамках того же канала.
// @Tags Orders
// @Accept  json
// @Produce  json
// @Param id path int true "ID подписки"
// @Param request body Request true "Новый тариф и действие"
// @Success 200 {object} map[string]any "Параметры заказа для checkout"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос или тариф другого канала"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужая подписка"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Платёжный шлюз недоступен"
// @Router /subscriptions/{id}/upgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.order.upgrade"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriptionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

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

	action, err := models.ParseActivationAction(req.Action)
	if err != nil {
		log.Error("unknown action", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown action"))
		return
	}

	result, err := h.service.InitiateUpgrade(r.Context(), userUID, subscriptionID, req.PlanID, action)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrForeignSubscription):
			log.Error("foreign subscription", slog.Int("subscription_id", subscriptionID))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("subscription belongs to another user"))
		case errors.Is(err, order.ErrInvalidPlan), errors.Is(err, order.ErrChannelMismatch), errors.Is(err, order.ErrInvalidAmount):
			log.Error("invalid upgrade request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		case errors.Is(err, order.ErrGatewayUnavailable):
			log.Error("gateway unavailable", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("payment gateway unavailable"))
		default:
			log.Error("failed to initiate upgrade", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not initiate upgrade"))
		}
		return
	}

	log.Info("upgrade order created", slog.String("order_id", result.OrderID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order": result,
	}))
}
