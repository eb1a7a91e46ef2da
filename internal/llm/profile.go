package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
)

const (
	MinAge     = 18
	MaxAge     = 50
	defaultAge = 23
)

// ProfileSuggestion характеристики профиля, предложенные моделью.
type ProfileSuggestion struct {
	Name               string `json:"name" validate:"required,min=2,max=50"`
	Age                int    `json:"age" validate:"min=18,max=50"`
	Personality        string `json:"personality" validate:"required"`
	Appearance         string `json:"appearance" validate:"required"`
	Interests          string `json:"interests"`
	Background         string `json:"background"`
	CommunicationStyle string `json:"communication_style"`
}

// DefaultProfile профиль, который используется, когда модель недоступна
// или вернула непригодный ответ.
func DefaultProfile() ProfileSuggestion {
	return ProfileSuggestion{
		Name:               "Анна",
		Age:                defaultAge,
		Personality:        "Добрая и отзывчивая девушка с хорошим чувством юмора. Любит общаться и поддерживать близких людей.",
		Appearance:         "Привлекательная девушка среднего роста с длинными темными волосами и карими глазами.",
		Interests:          "чтение, фильмы, музыка, прогулки, кулинария",
		Background:         "Студентка университета, изучает психологию. Живет в большом городе, любит путешествовать.",
		CommunicationStyle: "Общается тепло и дружелюбно, часто использует эмодзи. Любит задавать вопросы и проявлять интерес к собеседнику.",
	}
}

// RandomPreferences предпочтения для случайного профиля.
const RandomPreferences = "Создай случайный профиль привлекательной девушки с уникальными чертами характера и внешности"

// flexAge принимает возраст и числом, и строкой.
type flexAge int

func (a *flexAge) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// "23 года" и подобное
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return nil
		}
		if f, err = strconv.ParseFloat(fields[0], 64); err != nil {
			return nil
		}
	}
	*a = flexAge(f)
	return nil
}

type rawSuggestion struct {
	Name               string  `json:"name"`
	Age                flexAge `json:"age"`
	Personality        string  `json:"personality"`
	Appearance         string  `json:"appearance"`
	Interests          string  `json:"interests"`
	Background         string  `json:"background"`
	CommunicationStyle string  `json:"communication_style"`
}

// SuggestProfile генерирует профиль по предпочтениям пользователя.
// Ошибки модели и непригодные ответы заменяются профилем по умолчанию.
func (c *Client) SuggestProfile(ctx context.Context, preferences, userContext string) ProfileSuggestion {
	start := time.Now()
	prompt := profilePrompt(preferences, userContext)
	text, err := c.generate(ctx, "", prompt, 1.0)
	metrics.ObserveGeneration("suggest_profile", start, err)
	if err != nil {
		c.log.Warn("profile suggestion failed, using default profile", sl.Err(err))
		return DefaultProfile()
	}
	s, err := c.parseSuggestion(text)
	if err != nil {
		c.log.Warn("unusable profile suggestion, using default profile", sl.Err(err))
		return DefaultProfile()
	}
	return s
}

func profilePrompt(preferences, userContext string) string {
	var b strings.Builder
	b.WriteString("На основе предпочтений пользователя создай характеристики для виртуальной девушки.\n")
	fmt.Fprintf(&b, "Предпочтения пользователя: %s\n", preferences)
	if userContext != "" {
		fmt.Fprintf(&b, "О пользователе: %s\n", userContext)
	}
	b.WriteString("Создай JSON с полями:\n" +
		"- name: имя девушки\n" +
		"- age: возраст (18-30)\n" +
		"- personality: описание характера (2-3 предложения)\n" +
		"- appearance: описание внешности (2-3 предложения)\n" +
		"- interests: интересы и хобби (через запятую)\n" +
		"- background: краткая предыстория (2-3 предложения)\n" +
		"- communication_style: стиль общения (1-2 предложения)\n" +
		"Отвечай только JSON без дополнительного текста.")
	return b.String()
}

// parseSuggestion достает JSON-объект из ответа модели, в том числе
// обернутый в markdown-блок или окруженный текстом.
func (c *Client) parseSuggestion(text string) (ProfileSuggestion, error) {
	const op = "llm.parseSuggestion"
	obj, ok := extractJSONObject(text)
	if !ok {
		return ProfileSuggestion{}, fmt.Errorf("%s: no json object in response", op)
	}
	var raw rawSuggestion
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return ProfileSuggestion{}, fmt.Errorf("%s: %w", op, err)
	}

	def := DefaultProfile()
	s := ProfileSuggestion{
		Name:               strings.TrimSpace(raw.Name),
		Age:                ClampAge(int(raw.Age)),
		Personality:        strings.TrimSpace(raw.Personality),
		Appearance:         strings.TrimSpace(raw.Appearance),
		Interests:          orDefault(raw.Interests, def.Interests),
		Background:         orDefault(raw.Background, def.Background),
		CommunicationStyle: orDefault(raw.CommunicationStyle, def.CommunicationStyle),
	}
	if err := c.validate.Struct(s); err != nil {
		return ProfileSuggestion{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// ClampAge приводит возраст к допустимому диапазону. Отсутствующий
// возраст заменяется возрастом по умолчанию.
func ClampAge(age int) int {
	switch {
	case age == 0:
		return defaultAge
	case age < MinAge:
		return MinAge
	case age > MaxAge:
		return MaxAge
	default:
		return age
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func extractJSONObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
