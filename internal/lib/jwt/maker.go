// Package jwt выпуск и проверка токенов административного API.
package jwt

import (
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
)

// RoleAdmin роль, с которой пускают в административный API.
const RoleAdmin = "admin"

// Maker выпускает и разбирает токены.
type Maker interface {
	GenerateToken(subject, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl подписывает токены HS256 общим секретом.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	clock     clock.Clock
}

// NewJWTMaker создает Maker с секретом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration, clk clock.Clock) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		clock:     clk,
	}
}
