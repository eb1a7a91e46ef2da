package dialogue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

const (
	stateKeyPrefix = "dialogue:"
	stateTTL       = 24 * time.Hour
)

// Kind вид состояния диалога.
type Kind string

const (
	KindIdle            Kind = "idle"
	KindWizard          Kind = "wizard"
	KindPreferences     Kind = "preferences"
	KindEditing         Kind = "editing"
	KindChatting        Kind = "chatting"
	KindAwaitingPayment Kind = "awaiting_payment"
)

// privileged ввод в этом состоянии доступен только с действующей подпиской.
func (k Kind) privileged() bool {
	switch k {
	case KindWizard, KindPreferences, KindEditing, KindChatting:
		return true
	default:
		return false
	}
}

// wizardSteps порядок шагов мастера создания профиля.
var wizardSteps = []models.PersonaField{
	models.FieldName,
	models.FieldAge,
	models.FieldPersonality,
	models.FieldAppearance,
	models.FieldInterests,
	models.FieldBackground,
}

// State состояние диалога пользователя. Какие поля заполнены, зависит от Kind.
type State struct {
	Kind Kind `json:"kind"`

	// wizard
	Step  int            `json:"step,omitempty"`
	Draft *persona.Draft `json:"draft,omitempty"`

	// editing
	Field models.PersonaField `json:"field,omitempty"`

	// chatting
	PersonaID int64 `json:"persona_id,omitempty"`

	// awaiting_payment
	PaymentRef string `json:"payment_ref,omitempty"`
	PaymentURL string `json:"payment_url,omitempty"`
}

func idle() State {
	return State{Kind: KindIdle}
}

func wizard(step int, draft persona.Draft) State {
	return State{Kind: KindWizard, Step: step, Draft: &draft}
}

func preferences() State {
	return State{Kind: KindPreferences}
}

func editing(field models.PersonaField) State {
	return State{Kind: KindEditing, Field: field}
}

func chatting(personaID int64) State {
	return State{Kind: KindChatting, PersonaID: personaID}
}

func awaitingPayment(ref, url string) State {
	return State{Kind: KindAwaitingPayment, PaymentRef: ref, PaymentURL: url}
}

// Cache хранилище состояний с TTL.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Store состояния диалогов по telegram_id. Отсутствие записи означает idle,
// незавершенный диалог забывается через сутки.
type Store struct {
	cache Cache
}

// NewStore создает хранилище состояний.
func NewStore(c Cache) *Store {
	return &Store{cache: c}
}

func stateKey(telegramID int64) string {
	return stateKeyPrefix + strconv.FormatInt(telegramID, 10)
}

// Load состояние пользователя.
func (s *Store) Load(ctx context.Context, telegramID int64) (State, error) {
	const op = "dialogue.Store.Load"
	var st State
	found, err := s.cache.Get(ctx, stateKey(telegramID), &st)
	if err != nil {
		return idle(), fmt.Errorf("%s: %w", op, err)
	}
	if !found || st.Kind == "" {
		return idle(), nil
	}
	return st, nil
}

// Save записывает состояние. Переход в idle удаляет запись.
func (s *Store) Save(ctx context.Context, telegramID int64, st State) error {
	const op = "dialogue.Store.Save"
	var err error
	if st.Kind == KindIdle {
		err = s.cache.Invalidate(ctx, stateKey(telegramID))
	} else {
		err = s.cache.Set(ctx, stateKey(telegramID), st, stateTTL)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LeavePayment возвращает пользователя в idle, если он ждал оплату.
func (s *Store) LeavePayment(ctx context.Context, telegramID int64) error {
	st, err := s.Load(ctx, telegramID)
	if err != nil {
		return err
	}
	if st.Kind != KindAwaitingPayment {
		return nil
	}
	return s.Save(ctx, telegramID, idle())
}
