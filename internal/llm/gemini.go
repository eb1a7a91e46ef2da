// Package llm клиент генеративной модели Gemini: ответы от лица профиля,
// модерация входящих сообщений и генерация профилей девушек.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
)

const (
	apiURL         = "https://generativelanguage.googleapis.com/v1beta"
	maxRetries     = 3
	initialBackoff = time.Second
)

var (
	// ErrBackendUnavailable модель не ответила после всех попыток.
	ErrBackendUnavailable = errors.New("generative backend unavailable")
	// ErrEmptyResponse модель ответила пустым текстом или отказалась отвечать.
	ErrEmptyResponse = errors.New("empty response from generative backend")
)

// Client клиент Gemini REST API.
type Client struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	backoff  time.Duration
	validate *validator.Validate
	log      *slog.Logger
}

// New создает клиент по настройкам.
func New(cfg config.Gemini, log *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		model:    strings.TrimPrefix(cfg.Model, "models/"),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		backoff:  initialBackoff,
		validate: validator.New(),
		log:      log,
	}
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	SafetySettings    []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var safety = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// generate отправляет запрос generateContent и возвращает склеенный текст
// первого кандидата. 429 и 5xx повторяются с экспоненциальной задержкой.
func (c *Client) generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	const op = "llm.generate"

	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		SafetySettings:   safety,
		GenerationConfig: &generationConfig{Temperature: temperature, MaxOutputTokens: 1024},
	}
	if system != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var respBody []byte
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<(attempt-1))
			c.log.Warn("retrying gemini request",
				slog.Int("attempt", attempt), slog.Duration("backoff", backoff), sl.Err(lastErr))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			}
			lastErr = err
			continue
		}
		respBody, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("api error (%d): %s", resp.StatusCode, errorMessage(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%s: %w: api error (%d): %s", op, ErrBackendUnavailable, resp.StatusCode, errorMessage(respBody))
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, lastErr)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		c.log.Warn("gemini blocked the prompt", slog.String("block_reason", gr.PromptFeedback.BlockReason))
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}
	return text, nil
}

func errorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// Request запрос ответа от лица профиля.
type Request struct {
	PersonaPrompt string
	PersonaName   string
	Message       string
	// History предыдущие реплики, по одной в строке.
	History string
}

// Generate ответ девушки на сообщение пользователя.
func (c *Client) Generate(ctx context.Context, r Request) (string, error) {
	start := time.Now()
	var prompt strings.Builder
	if r.History != "" {
		prompt.WriteString("Контекст предыдущих сообщений:\n")
		prompt.WriteString(r.History)
		prompt.WriteString("\n\n")
	}
	fmt.Fprintf(&prompt, "Пользователь написал: %s\n\nОтветь как %s:", r.Message, r.PersonaName)

	text, err := c.generate(ctx, r.PersonaPrompt, prompt.String(), 0.9)
	metrics.ObserveGeneration("generate", start, err)
	return text, err
}
