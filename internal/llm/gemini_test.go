package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-bot/internal/config"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(config.Gemini{APIKey: "test-key", Model: "gemini-pro", BaseURL: srv.URL, Timeout: 2 * time.Second}, newNoopLogger())
	c.backoff = time.Millisecond
	return c
}

func TestClient_Generate(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, textResponse("  Привет, милый!  "))
	})

	text, err := c.Generate(context.Background(), Request{
		PersonaPrompt: "Ты Анна",
		PersonaName:   "Анна",
		Message:       "Как дела?",
		History:       "Пользователь: привет\nДевушка: привет!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Привет, милый!", text)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "Ты Анна", got.SystemInstruction.Parts[0].Text)
	prompt := got.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Контекст предыдущих сообщений:\nПользователь: привет")
	assert.Contains(t, prompt, "Пользователь написал: Как дела?\n\nОтветь как Анна:")
}

func TestClient_GenerateRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota"}}`)
			return
		}
		_, _ = io.WriteString(w, textResponse("ok"))
	})

	text, err := c.Generate(context.Background(), Request{PersonaName: "Анна", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "persistent 5xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: ErrBackendUnavailable,
		},
		{
			name: "bad request is not retried",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad model"}}`)
			},
			wantErr: ErrBackendUnavailable,
		},
		{
			name: "blocked prompt",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
			},
			wantErr: ErrEmptyResponse,
		},
		{
			name: "empty text",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, textResponse("   "))
			},
			wantErr: ErrEmptyResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Generate(context.Background(), Request{PersonaName: "Анна", Message: "hi"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
		})
	}
}

func TestClient_SuggestProfile(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  func(t *testing.T, s ProfileSuggestion)
	}{
		{
			name:  "fenced json",
			reply: "Вот профиль:\n```json\n{\"name\":\"Мария\",\"age\":25,\"personality\":\"Веселая\",\"appearance\":\"Блондинка\",\"interests\":\"танцы\"}\n```",
			want: func(t *testing.T, s ProfileSuggestion) {
				assert.Equal(t, "Мария", s.Name)
				assert.Equal(t, 25, s.Age)
				assert.Equal(t, "танцы", s.Interests)
				assert.Equal(t, DefaultProfile().Background, s.Background)
			},
		},
		{
			name:  "embedded object with string age out of range",
			reply: `Конечно! {"name":"Ева","age":"60 лет","personality":"Спокойная","appearance":"Высокая"} Надеюсь, понравится.`,
			want: func(t *testing.T, s ProfileSuggestion) {
				assert.Equal(t, "Ева", s.Name)
				assert.Equal(t, MaxAge, s.Age)
			},
		},
		{
			name:  "under age is clamped",
			reply: `{"name":"Лиза","age":16,"personality":"Смелая","appearance":"Рыжая"}`,
			want: func(t *testing.T, s ProfileSuggestion) {
				assert.Equal(t, MinAge, s.Age)
			},
		},
		{
			name:  "missing required field falls back",
			reply: `{"name":"Лиза","age":20}`,
			want: func(t *testing.T, s ProfileSuggestion) {
				assert.Equal(t, DefaultProfile(), s)
			},
		},
		{
			name:  "not json falls back",
			reply: "Извините, не могу",
			want: func(t *testing.T, s ProfileSuggestion) {
				assert.Equal(t, DefaultProfile(), s)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, textResponse(tt.reply))
			})
			tt.want(t, c.SuggestProfile(context.Background(), "веселая блондинка", ""))
		})
	}
}

func TestClient_SuggestProfileBackendDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Equal(t, DefaultProfile(), c.SuggestProfile(context.Background(), RandomPreferences, ""))
}

func TestClient_Moderate(t *testing.T) {
	c := New(config.Gemini{APIKey: "k"}, newNoopLogger())
	assert.True(t, c.Moderate(context.Background(), "Как прошел твой день?"))
	assert.False(t, c.Moderate(context.Background(), "Хочу поговорить про СМЕРТЬ"))
	assert.False(t, c.Moderate(context.Background(), "наркотики"))
}

func TestClampAge(t *testing.T) {
	assert.Equal(t, 23, ClampAge(0))
	assert.Equal(t, 18, ClampAge(5))
	assert.Equal(t, 30, ClampAge(30))
	assert.Equal(t, 50, ClampAge(99))
}
