// Package expiry reminds premium users shortly before their access lapses.
package expiry

import (
	"context"
	"fmt"
	"time"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/database"
	"nexus-bot/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Hour
	DefaultWindow   = 24 * time.Hour
	DefaultPace     = time.Second

	Reminder = "⚠️ <b>Reminder:</b> Your Premium access will expire in less than 24 hours!\n" +
		"Use <code>/account</code> to check your exact expiration time."
)

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	Interval time.Duration
	Window   time.Duration
	Pace     time.Duration
}

// Notifier delivers at most one reminder per premium period, best effort: a
// crash between sending and marking the account re-sends on the next pass.
type Notifier struct {
	store  database.Store
	sender Sender
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger
}

func New(store database.Store, sender Sender, clk clock.Clock, cfg Config, logger *zap.Logger) *Notifier {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Pace <= 0 {
		cfg.Pace = DefaultPace
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{store: store, sender: sender, clock: clk, cfg: cfg, logger: logger}
}

// Run makes a pass every interval until ctx is done. A failed pass is
// logged and the loop carries on.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if _, err := n.RunOnce(ctx); err != nil && ctx.Err() == nil {
			n.logger.Error("Expiry pass failed", zap.Error(err))
		}
		if err := n.clock.Sleep(ctx, n.cfg.Interval); err != nil {
			return nil
		}
	}
}

// RunOnce reminds every account expiring inside the window that has not
// been reminded yet, and returns how many reminders went out.
func (n *Notifier) RunOnce(ctx context.Context) (int, error) {
	users, err := n.store.ListExpiringPremium(ctx, n.clock.Now(), n.cfg.Window)
	if err != nil {
		return 0, fmt.Errorf("list expiring premium: %w", err)
	}

	sent := 0
	for _, u := range users {
		if err := n.sender.Send(ctx, u.ID, Reminder); err != nil {
			metrics.ReminderSends.WithLabelValues("failed").Inc()
			n.logger.Warn("Failed to send expiry reminder", zap.Int64("user_id", u.ID), zap.Error(err))
		} else {
			metrics.ReminderSends.WithLabelValues("ok").Inc()
			sent++
			if err := n.store.MarkExpiryNotified(ctx, u.ID); err != nil {
				n.logger.Error("Failed to mark reminder as sent", zap.Int64("user_id", u.ID), zap.Error(err))
			}
		}

		if err := n.clock.Sleep(ctx, n.cfg.Pace); err != nil {
			return sent, err
		}
	}

	if sent > 0 {
		n.logger.Info("Expiry reminders sent", zap.Int("count", sent))
	}
	return sent, nil
}
