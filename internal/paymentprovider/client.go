// Package paymentprovider клиент REST API ЮKassa.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/companion-bot/internal/config"
)

const defaultAPIURL = "https://api.yookassa.ru/v3"

// Client клиент ЮKassa.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	returnURL  string
	httpClient *http.Client
}

// NewClient создаёт новый клиент ЮKassa
func NewClient(cfg config.YooKassa) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     apiURL,
		returnURL:  cfg.ReturnURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (*PaymentObject, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status: %s: %s", resp.Status, body)
	}
	var p PaymentObject
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ChargeRequest параметры нового платежа.
type ChargeRequest struct {
	AmountRub   int
	Description string
	UserID      int64
	TelegramID  int64
	PlanID      int64
}

// CreatePayment создает платеж с подтверждением через redirect. Каждый вызов
// получает свой Idempotence-Key, так что повтор запроса не создаст второй платеж.
func (c *Client) CreatePayment(ctx context.Context, r ChargeRequest) (*Charge, error) {
	const op = "paymentprovider.CreatePayment"
	body := CreatePaymentRequest{
		Amount:       RubAmount(r.AmountRub),
		Confirmation: Confirmation{Type: "redirect", ReturnURL: c.returnURL},
		Capture:      true,
		Description:  r.Description,
		Metadata: Metadata{
			UserID:     strconv.FormatInt(r.UserID, 10),
			TelegramID: strconv.FormatInt(r.TelegramID, 10),
		},
	}
	if r.PlanID != 0 {
		body.Metadata.PlanID = strconv.FormatInt(r.PlanID, 10)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", uuid.NewString())

	p, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.ID == "" || p.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("%s: response without id or confirmation url", op)
	}
	return &Charge{ID: p.ID, ConfirmationURL: p.Confirmation.ConfirmationURL}, nil
}

// GetPayment запрашивает текущее состояние платежа.
func (c *Client) GetPayment(ctx context.Context, id string) (*PaymentObject, error) {
	const op = "paymentprovider.GetPayment"
	req, err := c.newRequest(ctx, http.MethodGet, "/payments/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
