// Package users административный просмотр пользователя бота.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/companion-bot/internal/http/response"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

// Repository чтение пользователей и платежей.
type Repository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	LatestPendingPayment(ctx context.Context, userID int64) (*models.Payment, error)
}

// Entitlements сводка подписки.
type Entitlements interface {
	Info(ctx context.Context, userID int64) (models.SubscriptionInfo, error)
}

// UserResponse карточка пользователя.
type UserResponse struct {
	ID             int64                `json:"id"`
	TelegramID     int64                `json:"telegram_id"`
	Username       string               `json:"username,omitempty"`
	FirstName      string               `json:"first_name,omitempty"`
	TrialUsed      bool                 `json:"trial_used"`
	CreatedAt      time.Time            `json:"created_at"`
	Subscription   SubscriptionResponse `json:"subscription"`
	PendingPayment *PaymentResponse     `json:"pending_payment,omitempty"`
}

// SubscriptionResponse состояние подписки.
type SubscriptionResponse struct {
	Active   bool                      `json:"active"`
	Status   models.SubscriptionStatus `json:"status,omitempty"`
	EndTime  *time.Time                `json:"end_time,omitempty"`
	DaysLeft int                       `json:"days_left"`
}

// PaymentResponse незавершенный платеж.
type PaymentResponse struct {
	ExternalID string    `json:"external_id"`
	Amount     int       `json:"amount"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}

// Handler обработчик карточки пользователя.
type Handler struct {
	log          *slog.Logger
	repo         Repository
	entitlements Entitlements
}

// New создает обработчик.
func New(log *slog.Logger, repo Repository, entitlements Entitlements) *Handler {
	return &Handler{
		log:          log,
		repo:         repo,
		entitlements: entitlements,
	}
}

// ServeHTTP godoc
// @Summary      Карточка пользователя
// @Description  Профиль, подписка и незавершенный платеж пользователя Telegram.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        telegram_id  path  int  true  "Telegram ID"
// @Success      200  {object}  response.Response{data=UserResponse}
// @Failure      400  {object}  response.ErrorResponse
// @Failure      401  {object}  response.ErrorResponse
// @Failure      404  {object}  response.ErrorResponse
// @Failure      500  {object}  response.ErrorResponse
// @Router       /api/v1/admin/users/{telegram_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.ServeHTTP"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil || telegramID <= 0 {
		log.Warn("failed to decode telegram_id from url", slog.String("telegram_id", chi.URLParam(r, "telegram_id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode telegram_id from url"))
		return
	}

	user, err := h.repo.GetUserByTelegramID(r.Context(), telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}
	if err != nil {
		log.Error("failed to get user", sl.TelegramID(telegramID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	info, err := h.entitlements.Info(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to get subscription info", sl.UserID(user.ID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	resp := UserResponse{
		ID:         user.ID,
		TelegramID: user.TelegramID,
		Username:   user.Username,
		FirstName:  user.FirstName,
		TrialUsed:  user.TrialUsed,
		CreatedAt:  user.CreatedAt,
		Subscription: SubscriptionResponse{
			Active:   info.HasSubscription,
			DaysLeft: info.DaysLeft,
		},
	}
	if info.HasSubscription {
		end := info.EndTime
		resp.Subscription.Status = info.Status
		resp.Subscription.EndTime = &end
	}

	pending, err := h.repo.LatestPendingPayment(r.Context(), user.ID)
	switch {
	case err == nil:
		resp.PendingPayment = &PaymentResponse{
			ExternalID: pending.ExternalID,
			Amount:     pending.Amount,
			Currency:   pending.Currency,
			CreatedAt:  pending.CreatedAt,
		}
	case !errors.Is(err, repository.ErrNotFound):
		log.Warn("failed to get pending payment", sl.UserID(user.ID), sl.Err(err))
	}

	render.JSON(w, r, response.OKWithData(resp))
}
