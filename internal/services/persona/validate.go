package persona

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const (
	minNameLen        = 2
	minDescriptionLen = 10
)

// ValidationError ошибка ввода с текстом для пользователя.
type ValidationError struct {
	Field   models.PersonaField
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + string(e.Field) + ": " + e.Message
}

// ValidateName имя из букв и пробелов, не короче двух символов.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	ok := utf8.RuneCountInString(name) >= minNameLen
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			ok = false
			break
		}
	}
	if !ok {
		return "", &ValidationError{
			Field:   models.FieldName,
			Message: "❌ Пожалуйста, введите корректное имя (только буквы, минимум 2 символа)",
		}
	}
	return name, nil
}

// ValidateAge возраст целым числом от 18 до 50.
func ValidateAge(raw string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || age < llm.MinAge || age > llm.MaxAge {
		return 0, &ValidationError{
			Field:   models.FieldAge,
			Message: "❌ Пожалуйста, введите корректный возраст (от 18 до 50 лет)",
		}
	}
	return age, nil
}

// ValidateField проверяет значение поля и возвращает его в виде для записи.
func ValidateField(field models.PersonaField, raw string) (any, error) {
	value := strings.TrimSpace(raw)
	switch field {
	case models.FieldName:
		return ValidateName(value)
	case models.FieldAge:
		return ValidateAge(value)
	case models.FieldPersonality:
		if utf8.RuneCountInString(value) < minDescriptionLen {
			return nil, &ValidationError{Field: field, Message: "❌ Пожалуйста, опишите характер подробнее (минимум 10 символов)"}
		}
	case models.FieldAppearance:
		if utf8.RuneCountInString(value) < minDescriptionLen {
			return nil, &ValidationError{Field: field, Message: "❌ Пожалуйста, опишите внешность подробнее (минимум 10 символов)"}
		}
	case models.FieldInterests, models.FieldBackground, models.FieldCommunicationStyle:
		if value == "" {
			return nil, &ValidationError{Field: field, Message: "❌ Поле не может быть пустым"}
		}
	default:
		return nil, &ValidationError{Field: field, Message: "❌ Неизвестное поле профиля"}
	}
	return value, nil
}

// ValidatePreferences пожелания к профилю, который сгенерирует модель.
func ValidatePreferences(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) < minDescriptionLen {
		return "", &ValidationError{Message: "❌ Пожалуйста, опишите предпочтения подробнее (минимум 10 символов)"}
	}
	return value, nil
}
