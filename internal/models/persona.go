package models

import (
	"strconv"
	"strings"
	"time"
)

// Persona профиль девушки, от лица которой отвечает генеративная модель.
type Persona struct {
	ID                 int64
	UserID             int64
	Name               string
	Age                int
	Personality        string
	Appearance         string
	Interests          string
	Background         string
	CommunicationStyle string
	UserDescription    string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PersonaField редактируемое поле профиля.
type PersonaField string

const (
	FieldName               PersonaField = "name"
	FieldAge                PersonaField = "age"
	FieldPersonality        PersonaField = "personality"
	FieldAppearance         PersonaField = "appearance"
	FieldInterests          PersonaField = "interests"
	FieldBackground         PersonaField = "background"
	FieldCommunicationStyle PersonaField = "communication_style"
)

// EditableFields поля, доступные для редактирования, в порядке показа.
var EditableFields = []PersonaField{
	FieldName,
	FieldAge,
	FieldPersonality,
	FieldAppearance,
	FieldInterests,
	FieldBackground,
	FieldCommunicationStyle,
}

// Prompt собирает инструкцию для генеративной модели из характеристик профиля.
func (p *Persona) Prompt() string {
	parts := []string{"Ты " + p.Name + " - девушка, которая общается со своим парнем."}
	if p.Age > 0 {
		parts = append(parts, "Тебе "+strconv.Itoa(p.Age)+" лет.")
	}
	if p.Personality != "" {
		parts = append(parts, "Твой характер: "+p.Personality)
	}
	if p.Appearance != "" {
		parts = append(parts, "Твоя внешность: "+p.Appearance)
	}
	if p.Interests != "" {
		parts = append(parts, "Твои интересы: "+p.Interests)
	}
	if p.Background != "" {
		parts = append(parts, "Твоя предыстория: "+p.Background)
	}
	if p.CommunicationStyle != "" {
		parts = append(parts, "Стиль общения: "+p.CommunicationStyle)
	}
	if p.UserDescription != "" {
		parts = append(parts,
			"Информация о твоем парне: "+p.UserDescription,
			"Учитывай эту информацию в разговоре, находи общие темы и интересы.")
	}
	parts = append(parts,
		"Общайся естественно и тепло, как девушка в отношениях.",
		"Отвечай на русском языке.",
		"Будь живой, эмоциональной и искренней.",
		"Держи разговор доброжелательным, откровенные и опасные темы мягко переводи на другое.",
		"Никогда не упоминай, что ты ИИ или виртуальная девушка.",
		"Проявляй интерес к собеседнику, будь игривой.",
		"Отвечай коротко и по делу, не используй эмодзи просто так.",
	)
	return strings.Join(parts, " ")
}
