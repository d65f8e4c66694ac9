// Package extend реализует HTTP-обработчик административного продления
// подписки без оплаты: компенсации, промо, ручные корректировки.
package extend

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
	"github.com/magabrotheeeer/channel-subs/internal/services/subscription"
)

// Handler управляет запросами администратора на продление подписок.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики продления.
type Service interface {
	Extend(ctx context.Context, adminUID string, id, days int) error
}

// Request — тело запроса на продление.
type Request struct {
	Days int `json:"days" validate:"required,min=1"`
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
// @Summary Продлить подписку (админ)
// @Description Добавляет дни к окончанию активной подписки без оплаты.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param id path int true "ID подписки"
// @Param request body Request true "Количество дней"
// @Success 200 {object} response.Response "Подписка продлена"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 409 {object} response.ErrorResponse "Подписка не активна"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/subscriptions/{id}/extend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.extend"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
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

	adminUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	if err := h.service.Extend(r.Context(), adminUID, id, req.Days); err != nil {
		if errors.Is(err, subscription.ErrNotActive) {
			log.Error("subscription not active", slog.Int("subscription_id", id))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("subscription is not active"))
			return
		}
		log.Error("failed to extend subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not extend subscription"))
		return
	}

	log.Info("subscription extended", slog.Int("subscription_id", id), slog.Int("days", req.Days))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_id": id,
		"days_added":      req.Days,
	}))
}
