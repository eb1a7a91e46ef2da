package models

import "time"

// PlanType тип тарифа.
type PlanType string

const (
	PlanMonthly   PlanType = "monthly"
	PlanQuarterly PlanType = "quarterly"
	PlanYearly    PlanType = "yearly"
)

// MonthlyBasePrice цена месяца, от которой считается экономия длинных тарифов.
const MonthlyBasePrice = 299

// Plan запись каталога тарифов. После создания не меняется.
type Plan struct {
	ID                 int64
	Name               string
	PlanType           PlanType
	DurationDays       int
	Price              int // В рублях
	Currency           string
	Description        string
	Features           []string
	DiscountPercentage int
	IsPopular          bool
	IsActive           bool
	CreatedAt          time.Time
}

// MonthlyEquivalent цена тарифа в пересчете на 30 дней.
func (p *Plan) MonthlyEquivalent() int {
	if p.DurationDays <= 0 {
		return p.Price
	}
	return p.Price * 30 / p.DurationDays
}

// Savings экономия относительно помесячной оплаты за тот же срок.
func (p *Plan) Savings() int {
	full := MonthlyBasePrice * p.DurationDays / 30
	if full <= p.Price {
		return 0
	}
	return full - p.Price
}

// DefaultPlans каталог, которым заполняется пустая таблица тарифов.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Name:         "Месячная подписка",
			PlanType:     PlanMonthly,
			DurationDays: 30,
			Price:        299,
			Currency:     "RUB",
			Description:  "Полный доступ ко всем функциям на 1 месяц",
			Features: []string{
				"Неограниченное общение",
				"Создание и редактирование профилей",
				"Сохранение истории разговоров",
			},
			IsActive: true,
		},
		{
			Name:               "Подписка на 3 месяца",
			PlanType:           PlanQuarterly,
			DurationDays:       90,
			Price:              799,
			Currency:           "RUB",
			Description:        "Полный доступ на 3 месяца со скидкой",
			Features:           []string{"Все возможности месячной подписки", "Экономия 11%"},
			DiscountPercentage: 11,
			IsPopular:          true,
			IsActive:           true,
		},
		{
			Name:               "Годовая подписка",
			PlanType:           PlanYearly,
			DurationDays:       365,
			Price:              2399,
			Currency:           "RUB",
			Description:        "Полный доступ на год с максимальной скидкой",
			Features:           []string{"Все возможности месячной подписки", "Экономия 33%", "Приоритетная поддержка"},
			DiscountPercentage: 33,
			IsActive:           true,
		},
	}
}
