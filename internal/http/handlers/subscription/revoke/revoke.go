// Package revoke реализует HTTP-обработчик административного отзыва подписки:
// статус переводится в revoked, владелец удаляется из канала.
package revoke

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

	"github.com/magabrotheeeer/channel-subs/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-subs/internal/http/response"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/services/subscription"
)

// Handler управляет запросами администратора на отзыв подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отзыва.
type Service interface {
	Revoke(ctx context.Context, adminUID string, id int, reason string) error
}

// Request — тело запроса на отзыв.
type Request struct {
	Reason string `json:"reason,omitempty"`
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отозвать подписку (админ)
// @Description Переводит активную подписку в revoked и удаляет владельца из канала.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param id path int true "ID подписки"
// @Param request body Request false "Причина отзыва"
// @Success 200 {object} response.Response "Подписка отозвана"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 409 {object} response.ErrorResponse "Подписка не активна"
// @Router /admin/subscriptions/{id}/revoke [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.revoke"
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
	if r.Body != nil {
		// Причина не обязательна, пустое тело допустимо
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	adminUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	if err := h.service.Revoke(r.Context(), adminUID, id, req.Reason); err != nil {
		if errors.Is(err, subscription.ErrNotActive) {
			log.Error("subscription not active", slog.Int("subscription_id", id))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("subscription is not active"))
			return
		}
		log.Error("failed to revoke subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke subscription"))
		return
	}

	log.Info("subscription revoked", slog.Int("subscription_id", id))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_id": id,
	}))
}
