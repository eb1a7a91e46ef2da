package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const (
	// expiryCooldown минимальный интервал между предупреждениями одному пользователю.
	expiryCooldown = 12 * time.Hour
	// expiredLookback насколько давно истекшие подписки еще получают уведомление.
	expiredLookback = 24 * time.Hour
)

// Repository хранилище, по которому идет обход.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	ExpiringSubscriptions(ctx context.Context, now, until, cooldownBefore time.Time) ([]models.ExpiryCandidate, error)
	ExpiredSubscriptions(ctx context.Context, now, since time.Time) ([]models.ExpiryCandidate, error)
	MarkExpired(ctx context.Context, subscriptionID int64, now time.Time) (bool, error)
	SetExpiryNotified(ctx context.Context, userID int64, at time.Time) error
	SetExpiredNotified(ctx context.Context, userID int64, at time.Time) error
}

// Stats итог одного обхода.
type Stats struct {
	ExpiryWarnings int `json:"expiry_warnings"`
	Expired        int `json:"expired"`
	Errors         int `json:"errors"`
}

// Info настройки планировщика и результат последнего обхода.
type Info struct {
	Enabled       bool          `json:"enabled"`
	CheckInterval time.Duration `json:"check_interval"`
	ExpiryDays    int           `json:"expiry_days"`
	Transport     string        `json:"transport"`
	LastSweepAt   *time.Time    `json:"last_sweep_at,omitempty"`
	LastStats     Stats         `json:"last_stats"`
}

// Scheduler периодически ищет подписки, о которых нужно уведомить.
type Scheduler struct {
	repo   Repository
	sender Sender
	clock  clock.Clock
	cfg    config.Notifications
	log    *slog.Logger

	// sweepMu не дает обходам пересекаться.
	sweepMu sync.Mutex

	infoMu    sync.Mutex
	lastSweep *time.Time
	lastStats Stats
}

// New создает планировщик.
func New(repo Repository, sender Sender, clk clock.Clock, cfg config.Notifications, log *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:   repo,
		sender: sender,
		clock:  clk,
		cfg:    cfg,
		log:    log,
	}
}

// Run выполняет обход сразу и затем с интервалом check_interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("subscription notifications are disabled")
		return
	}
	s.log.Info("notification scheduler started", slog.Duration("interval", s.cfg.CheckInterval))
	s.Sweep(ctx, s.clock.Now())

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("notification scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, s.clock.Now())
		}
	}
}

// Sweep один обход на момент now. Ошибки отдельных пользователей
// учитываются в Stats.Errors и не прерывают обход.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) Stats {
	if !s.cfg.Enabled {
		return Stats{}
	}
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	log := s.log.With(slog.String("op", "notification.Sweep"), slog.Time("now", now))

	var st Stats
	s.sendExpiryWarnings(ctx, log, now, &st)
	s.sendExpired(ctx, log, now, &st)

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	log.Info("notification sweep completed",
		slog.Int("expiry_warnings", st.ExpiryWarnings),
		slog.Int("expired", st.Expired),
		slog.Int("errors", st.Errors))

	s.infoMu.Lock()
	s.lastSweep = &now
	s.lastStats = st
	s.infoMu.Unlock()
	return st
}

func (s *Scheduler) sendExpiryWarnings(ctx context.Context, log *slog.Logger, now time.Time, st *Stats) {
	until := now.Add(time.Duration(s.cfg.ExpiryDays) * 24 * time.Hour)
	candidates, err := s.repo.ExpiringSubscriptions(ctx, now, until, now.Add(-expiryCooldown))
	if err != nil {
		log.Error("failed to find expiring subscriptions", sl.Err(err))
		st.Errors++
		return
	}

	seen := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.User.ID]; ok {
			continue
		}
		seen[c.User.ID] = struct{}{}

		n := ExpiryWarning(c, now)
		if err := s.sender.Send(ctx, n); err != nil {
			log.Error("failed to send expiry warning", sl.TelegramID(c.User.TelegramID), sl.Err(err))
			metrics.NotificationsSent.WithLabelValues(string(KindExpiry), "error").Inc()
			st.Errors++
			continue
		}
		if err := s.repo.SetExpiryNotified(ctx, c.User.ID, now); err != nil {
			log.Error("failed to store expiry watermark", sl.UserID(c.User.ID), sl.Err(err))
			st.Errors++
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(KindExpiry), "sent").Inc()
		log.Info("expiry warning sent", sl.TelegramID(c.User.TelegramID))
		st.ExpiryWarnings++
	}
}

func (s *Scheduler) sendExpired(ctx context.Context, log *slog.Logger, now time.Time, st *Stats) {
	candidates, err := s.repo.ExpiredSubscriptions(ctx, now, now.Add(-expiredLookback))
	if err != nil {
		log.Error("failed to find expired subscriptions", sl.Err(err))
		st.Errors++
		return
	}

	seen := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.User.ID]; ok {
			continue
		}
		seen[c.User.ID] = struct{}{}

		sent := false
		err := s.repo.InTx(ctx, func(ctx context.Context) error {
			flipped, err := s.repo.MarkExpired(ctx, c.Subscription.ID, now)
			if err != nil || !flipped {
				return err
			}
			if err := s.repo.SetExpiredNotified(ctx, c.User.ID, now); err != nil {
				return err
			}
			if err := s.sender.Send(ctx, Expired(c)); err != nil {
				return err
			}
			sent = true
			return nil
		})
		if err != nil {
			log.Error("failed to process expired subscription",
				sl.TelegramID(c.User.TelegramID), slog.Int64("subscription_id", c.Subscription.ID), sl.Err(err))
			metrics.NotificationsSent.WithLabelValues(string(KindExpired), "error").Inc()
			st.Errors++
			continue
		}
		if sent {
			metrics.NotificationsSent.WithLabelValues(string(KindExpired), "sent").Inc()
			log.Info("expired notification sent", sl.TelegramID(c.User.TelegramID))
			st.Expired++
		}
	}
}

// Info текущие настройки и итог последнего обхода.
func (s *Scheduler) Info() Info {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return Info{
		Enabled:       s.cfg.Enabled,
		CheckInterval: s.cfg.CheckInterval,
		ExpiryDays:    s.cfg.ExpiryDays,
		Transport:     s.cfg.Transport,
		LastSweepAt:   s.lastSweep,
		LastStats:     s.lastStats,
	}
}
