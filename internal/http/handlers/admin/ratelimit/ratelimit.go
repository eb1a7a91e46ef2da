// Package ratelimit административные обработчики лимита сообщений: сводка и
// сброс бана пользователя.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/companion-bot/internal/http/response"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
)

// Service лимитер сообщений.
type Service interface {
	Stats(ctx context.Context) (ratelimiter.Stats, error)
	Reset(ctx context.Context, userID int64) error
}

// StatsResponse сводка лимитера.
type StatsResponse struct {
	Enabled           bool   `json:"enabled"`
	MessagesPerWindow int    `json:"messages_per_window"`
	Window            string `json:"window"`
	BanDuration       string `json:"ban_duration"`
	WarningThreshold  int    `json:"warning_threshold"`
	ActiveWindows     int    `json:"active_windows"`
	BannedUsers       int    `json:"banned_users"`
	WarnedUsers       int    `json:"warned_users"`
}

type resetRequest struct {
	TelegramID int64 `validate:"required,gt=0"`
}

// Handler обработчики лимита.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает обработчики лимита.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Stats godoc
// @Summary      Сводка лимита сообщений
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=StatsResponse}
// @Failure      401  {object}  response.ErrorResponse
// @Failure      500  {object}  response.ErrorResponse
// @Router       /api/v1/admin/ratelimit [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.ratelimit.Stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	st, err := h.service.Stats(r.Context())
	if err != nil {
		log.Error("failed to get rate limit stats", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get rate limit stats"))
		return
	}
	render.JSON(w, r, response.OKWithData(StatsResponse{
		Enabled:           st.Enabled,
		MessagesPerWindow: st.MessagesPerWindow,
		Window:            st.Window.String(),
		BanDuration:       st.BanDuration.String(),
		WarningThreshold:  st.WarningThreshold,
		ActiveWindows:     st.ActiveWindows,
		BannedUsers:       st.BannedUsers,
		WarnedUsers:       st.WarnedUsers,
	}))
}

// Reset godoc
// @Summary      Сброс лимита пользователя
// @Description  Снимает бан и очищает окно сообщений пользователя Telegram.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        telegram_id  path  int  true  "Telegram ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.ErrorResponse
// @Failure      500  {object}  response.ErrorResponse
// @Router       /api/v1/admin/ratelimit/{telegram_id}/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.ratelimit.Reset"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil {
		log.Warn("failed to decode telegram_id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode telegram_id from url"))
		return
	}
	req := resetRequest{TelegramID: id}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	if err := h.service.Reset(r.Context(), req.TelegramID); err != nil {
		log.Error("failed to reset rate limit", sl.TelegramID(req.TelegramID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not reset rate limit"))
		return
	}
	log.Info("rate limit reset via api", sl.TelegramID(req.TelegramID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"telegram_id": req.TelegramID,
	}))
}
