// Package paymentwebhook принимает уведомления ЮKassa о статусе платежа.
//
// Повторная доставка уже примененного события отвечает 200, чтобы провайдер
// прекратил повторы. Внутренняя ошибка отвечает 500, и провайдер повторит
// уведомление позже. Неизвестный платеж отвечает 400: повтор его не исправит.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/companion-bot/internal/http/response"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
)

// maxBodyBytes предел размера тела уведомления.
const maxBodyBytes = 1 << 20

// Service применяет событие платежа.
type Service interface {
	HandleWebhook(ctx context.Context, ev payment.WebhookEvent) (payment.Result, error)
}

// Handler обработчик вебхука.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // пустой секрет отключает проверку подписи
}

// New создает обработчик вебхука.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature HMAC-SHA256 тела в base64, заголовок X-Api-Signature.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary      Уведомление ЮKassa
// @Description  Применяет событие payment.succeeded или payment.canceled. Повторная доставка идемпотентна.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Api-Signature  header  string                false  "HMAC-SHA256 тела в base64"
// @Param        event            body    payment.WebhookEvent  true   "Событие платежа"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.ErrorResponse  "некорректное тело или неизвестный платеж"
// @Failure      401  {object}  response.ErrorResponse
// @Failure      500  {object}  response.ErrorResponse
// @Router       /api/v1/payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}
	defer r.Body.Close()

	if h.webhookSecret != "" {
		signature := r.Header.Get("X-Api-Signature")
		if signature == "" || !h.verifySignature(body, signature) {
			log.Warn("invalid or missing webhook signature")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid signature"))
			return
		}
	}

	var ev payment.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid json"))
		return
	}
	if ev.Event == "" || ev.Object.ID == "" {
		log.Warn("webhook payload without event or payment id")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("event and object.id are required"))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), ev)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		log.Warn("webhook for unknown payment", slog.String("payment_id", ev.Object.ID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown payment"))
		return
	}
	if err != nil {
		log.Error("failed to process webhook event", slog.String("payment_id", ev.Object.ID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("webhook processed",
		slog.String("event", ev.Event),
		slog.String("payment_id", ev.Object.ID),
		slog.String("result", string(result)),
	)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"result": result,
	}))
}
