// Package ratelimiter реализует распределенный лимит сообщений на пользователя
// со скользящим окном, баном за превышение и однократным предупреждением.
//
// Состояние пользователя хранится в Redis в трех ключах с TTL:
// окно (sorted set отметок времени), бан (момент окончания) и предупреждение
// (момент, до которого повторно не предупреждаем). Все решения принимаются
// по часам вызывающей стороны, TTL нужен только для уборки ключей.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
)

const (
	keyPrefix     = "rate_limit:"
	windowPrefix  = keyPrefix + "count:"
	banPrefix     = keyPrefix + "ban:"
	warningPrefix = keyPrefix + "warning:"
)

// Decision результат проверки лимита.
type Decision struct {
	Allowed      bool
	Remaining    int
	ResetIn      time.Duration
	Banned       bool
	BanRemaining time.Duration
	Warn         bool
	// FailOpen выставляется, когда хранилище недоступно и запрос пропущен без проверки.
	FailOpen bool
}

// BanSeconds оставшееся время бана в секундах с округлением вверх.
func (d Decision) BanSeconds() int {
	return int((d.BanRemaining + time.Second - 1) / time.Second)
}

// Stats сводка по всем пользователям.
type Stats struct {
	Enabled           bool
	ActiveWindows     int
	BannedUsers       int
	WarnedUsers       int
	MessagesPerWindow int
	Window            time.Duration
	BanDuration       time.Duration
	WarningThreshold  int
}

// Limiter лимитер поверх Redis.
type Limiter struct {
	client    *redis.Client
	clock     clock.Clock
	log       *slog.Logger
	enabled   bool
	capacity  int
	window    time.Duration
	ban       time.Duration
	threshold int
}

// New создает лимитер.
func New(client *redis.Client, cfg config.RateLimit, clk clock.Clock, log *slog.Logger) *Limiter {
	return &Limiter{
		client:    client,
		clock:     clk,
		log:       log,
		enabled:   cfg.Enabled,
		capacity:  cfg.MessagesPerWindow,
		window:    cfg.Window,
		ban:       cfg.BanDuration,
		threshold: cfg.WarningThreshold,
	}
}

// Admit проверяет, можно ли принять сообщение, ничего не записывая в окно.
// После разрешения вызывающий обязан вызвать Record.
func (l *Limiter) Admit(ctx context.Context, userID int64) Decision {
	return l.eval(ctx, userID, false)
}

// Take атомарно проверяет лимит и при разрешении учитывает сообщение.
func (l *Limiter) Take(ctx context.Context, userID int64) Decision {
	return l.eval(ctx, userID, true)
}

// Record учитывает принятое сообщение в окне пользователя.
func (l *Limiter) Record(ctx context.Context, userID int64) {
	if !l.enabled {
		return
	}
	now := l.clock.Now()
	key := windowPrefix + strconv.FormatInt(userID, 10)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member(now)})
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		l.log.Warn("rate limiter record failed", sl.UserID(userID), sl.Err(err))
	}
}

// Reset снимает бан и очищает окно пользователя.
func (l *Limiter) Reset(ctx context.Context, userID int64) error {
	const op = "ratelimiter.Reset"
	id := strconv.FormatInt(userID, 10)
	if err := l.client.Del(ctx, windowPrefix+id, banPrefix+id, warningPrefix+id).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	l.log.Info("rate limit reset", sl.UserID(userID))
	return nil
}

// Stats считает активные окна, баны и предупреждения.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	const op = "ratelimiter.Stats"
	st := Stats{
		Enabled:           l.enabled,
		MessagesPerWindow: l.capacity,
		Window:            l.window,
		BanDuration:       l.ban,
		WarningThreshold:  l.threshold,
	}
	var err error
	if st.ActiveWindows, err = l.countKeys(ctx, windowPrefix+"*"); err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	if st.BannedUsers, err = l.countKeys(ctx, banPrefix+"*"); err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	if st.WarnedUsers, err = l.countKeys(ctx, warningPrefix+"*"); err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

func (l *Limiter) countKeys(ctx context.Context, pattern string) (int, error) {
	var n int
	iter := l.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (l *Limiter) eval(ctx context.Context, userID int64, record bool) Decision {
	if !l.enabled {
		return Decision{Allowed: true, Remaining: l.capacity, ResetIn: l.window}
	}
	now := l.clock.Now()
	id := strconv.FormatInt(userID, 10)
	recordFlag := "0"
	if record {
		recordFlag = "1"
	}

	res, err := admitScript.Run(ctx, l.client,
		[]string{banPrefix + id, windowPrefix + id, warningPrefix + id},
		now.UnixMilli(),
		l.window.Milliseconds(),
		l.capacity,
		l.ban.Milliseconds(),
		l.threshold,
		recordFlag,
		member(now),
	).Int64Slice()
	if err != nil || len(res) != 6 {
		if err == nil {
			err = fmt.Errorf("unexpected script reply of %d values", len(res))
		}
		l.log.Warn("rate limiter unavailable, allowing message", sl.UserID(userID), sl.Err(err))
		return Decision{Allowed: true, Remaining: l.capacity - 1, ResetIn: l.window, FailOpen: true}
	}

	d := Decision{
		Allowed:      res[0] == 1,
		Banned:       res[1] == 1,
		BanRemaining: time.Duration(res[2]) * time.Millisecond,
		Remaining:    int(res[3]),
		ResetIn:      time.Duration(res[4]) * time.Millisecond,
		Warn:         res[5] == 1,
	}
	if d.Banned {
		l.log.Info("user is rate limited", sl.UserID(userID), slog.Duration("ban_remaining", d.BanRemaining))
	}
	return d
}

func member(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
}
