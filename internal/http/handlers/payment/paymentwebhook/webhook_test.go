package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HandleWebhook(ctx context.Context, ev payment.WebhookEvent) (payment.Result, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(payment.Result), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const succeededBody = `{"type":"notification","event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded","paid":true,"metadata":{"user_id":"10","plan_id":"1"}}}`

func TestWebhookHandler(t *testing.T) {
	byPayment := func(id string) any {
		return mock.MatchedBy(func(ev payment.WebhookEvent) bool { return ev.Object.ID == id })
	}

	tests := []struct {
		name           string
		secret         string
		body           string
		signature      string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная оплата",
			body: succeededBody,
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, byPayment("pay-1")).Return(payment.ResultActivated, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"result":"activated"}}`,
		},
		{
			name: "повторная доставка",
			body: succeededBody,
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, byPayment("pay-1")).Return(payment.ResultDuplicate, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"result":"duplicate"`,
		},
		{
			name:           "некорректный json",
			body:           `{"event":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid json"}`,
		},
		{
			name:           "нет идентификатора платежа",
			body:           `{"event":"payment.succeeded","object":{}}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `event and object.id are required`,
		},
		{
			name: "неизвестный платеж",
			body: succeededBody,
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, byPayment("pay-1")).
					Return(payment.Result(""), fmt.Errorf("payment.HandleWebhook: %w", payment.ErrPaymentNotFound)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"unknown payment"}`,
		},
		{
			name: "ошибка сервиса",
			body: succeededBody,
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, byPayment("pay-1")).Return(payment.Result(""), errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
		{
			name:      "верная подпись",
			secret:    "whsec",
			body:      succeededBody,
			signature: sign("whsec", succeededBody),
			setupMock: func(m *MockService) {
				m.On("HandleWebhook", mock.Anything, byPayment("pay-1")).Return(payment.ResultActivated, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"result":"activated"`,
		},
		{
			name:           "неверная подпись",
			secret:         "whsec",
			body:           succeededBody,
			signature:      sign("other", succeededBody),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `invalid signature`,
		},
		{
			name:           "подписи нет",
			secret:         "whsec",
			body:           succeededBody,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `invalid signature`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			handler := New(newNoopLogger(), svc, tt.secret)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.signature != "" {
				req.Header.Set("X-Api-Signature", tt.signature)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
