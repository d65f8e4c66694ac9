// Package history реализует HTTP-обработчик журнала событий подписки.
// Администратор использует его для разбора сбоев внешних систем: каждая
// попытка удаления, напоминания или активации оставляет запись в журнале.
package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/channel-subs/internal/http/response"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/models"
)

// Handler обрабатывает запросы журнала событий подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики журнала подписки.
type Service interface {
	History(ctx context.Context, id, limit int) ([]*models.Event, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Журнал событий подписки
// @Description Возвращает последние события журнала по подписке, свежие первыми.
// @Tags Admin
// @Produce  json
// @Param id path int true "ID подписки"
// @Param limit query int false "Максимум записей (по умолчанию 50)"
// @Success 200 {object} map[string]any "События подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при чтении журнала"
// @Security BearerAuth
// @Router /admin/subscriptions/{id}/events [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.history"
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
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		log.Error("failed to read subscription history", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read subscription history"))
		return
	}

	log.Info("subscription history read", slog.Int("subscription_id", id), slog.Int("count", len(events)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"events": events,
	}))
}
