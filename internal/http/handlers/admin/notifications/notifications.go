// Package notifications административные обработчики планировщика
// уведомлений.
package notifications

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/companion-bot/internal/http/response"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
)

// Service планировщик уведомлений.
type Service interface {
	Info() notification.Info
	Sweep(ctx context.Context, now time.Time) notification.Stats
}

// Handler обработчики уведомлений.
type Handler struct {
	log     *slog.Logger
	service Service
	clock   clock.Clock
}

// New создает обработчики уведомлений.
func New(log *slog.Logger, service Service, clk clock.Clock) *Handler {
	return &Handler{
		log:     log,
		service: service,
		clock:   clk,
	}
}

// Info godoc
// @Summary      Состояние планировщика уведомлений
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=notification.Info}
// @Failure      401  {object}  response.ErrorResponse
// @Router       /api/v1/admin/notifications [get]
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(h.service.Info()))
}

// Sweep godoc
// @Summary      Внеочередная проверка подписок
// @Description  Выполняет обход немедленно. Параллельный обход не запускается дважды.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=notification.Stats}
// @Failure      401  {object}  response.ErrorResponse
// @Router       /api/v1/admin/notifications/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.notifications.Sweep"
	st := h.service.Sweep(r.Context(), h.clock.Now())
	h.log.Info("manual sweep via api",
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("expiry_warnings", st.ExpiryWarnings),
		slog.Int("expired", st.Expired),
		slog.Int("errors", st.Errors),
	)
	render.JSON(w, r, response.OKWithData(st))
}
