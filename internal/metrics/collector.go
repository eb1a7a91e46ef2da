package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// StatsSource сводные показатели из хранилища.
type StatsSource interface {
	CountUsers(ctx context.Context) (int, error)
	SubscriptionCounts(ctx context.Context) (map[models.SubscriptionStatus]int, error)
}

// StatsCollector отдает число пользователей и подписок по статусам на
// каждый сбор метрик. Ошибка хранилища пропускает соответствующую метрику.
type StatsCollector struct {
	source  StatsSource
	timeout time.Duration
	log     *slog.Logger

	users         *prometheus.Desc
	subscriptions *prometheus.Desc
}

// NewStatsCollector создает коллектор. Регистрация остается за вызывающим.
func NewStatsCollector(source StatsSource, log *slog.Logger) *StatsCollector {
	return &StatsCollector{
		source:  source,
		timeout: 3 * time.Second,
		log:     log,
		users: prometheus.NewDesc(
			"companion_users",
			"Registered users",
			nil, nil,
		),
		subscriptions: prometheus.NewDesc(
			"companion_subscriptions",
			"Subscriptions by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe реализует prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.users
	ch <- c.subscriptions
}

// Collect реализует prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if n, err := c.source.CountUsers(ctx); err != nil {
		c.log.Warn("failed to count users", sl.Err(err))
	} else {
		ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(n))
	}

	counts, err := c.source.SubscriptionCounts(ctx)
	if err != nil {
		c.log.Warn("failed to count subscriptions", sl.Err(err))
		return
	}
	for _, st := range []models.SubscriptionStatus{
		models.StatusTrial, models.StatusActive, models.StatusExpired, models.StatusCancelled,
	} {
		ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(counts[st]), string(st))
	}
}
