package paymentprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-bot/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.YooKassa{
		ShopID:    "shop",
		SecretKey: "secret",
		APIURL:    srv.URL,
		ReturnURL: "https://t.me/companion_bot",
	})
}

func TestClient_CreatePayment(t *testing.T) {
	var keys []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("shop:secret")), r.Header.Get("Authorization"))
		keys = append(keys, r.Header.Get("Idempotence-Key"))

		var req CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, Amount{Value: "799.00", Currency: "RUB"}, req.Amount)
		assert.Equal(t, "redirect", req.Confirmation.Type)
		assert.Equal(t, "https://t.me/companion_bot", req.Confirmation.ReturnURL)
		assert.True(t, req.Capture)
		assert.Equal(t, Metadata{UserID: "1", TelegramID: "100", PlanID: "2"}, req.Metadata)

		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id":"pay-1","status":"pending","confirmation":{"type":"redirect","confirmation_url":"https://yoomoney.ru/checkout/pay-1"}}`)
	})

	r := ChargeRequest{AmountRub: 799, Description: "Подписка: 3 месяца", UserID: 1, TelegramID: 100, PlanID: 2}
	charge, err := c.CreatePayment(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, &Charge{ID: "pay-1", ConfirmationURL: "https://yoomoney.ru/checkout/pay-1"}, charge)

	_, err = c.CreatePayment(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestClient_CreatePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unexpected status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"type":"error","code":"invalid_credentials"}`)
			},
		},
		{
			name: "missing confirmation url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"id":"pay-1","status":"pending"}`)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.CreatePayment(context.Background(), ChargeRequest{AmountRub: 299, UserID: 1, TelegramID: 100})
			assert.Error(t, err)
		})
	}
}

func TestClient_GetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/pay-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"pay-1","status":"succeeded","paid":true,"paid_at":"2025-06-01T12:00:00Z","metadata":{"user_id":"1","plan_id":"3"}}`)
	})

	p, err := c.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, p.Status)
	assert.Equal(t, "3", p.Metadata.PlanID)
	require.NotNil(t, p.PaidAt)
}

func TestRubAmount(t *testing.T) {
	assert.Equal(t, Amount{Value: "2399.00", Currency: "RUB"}, RubAmount(2399))
}
