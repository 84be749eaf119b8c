// Package broadcast delivers one operator message to every user at a pace
// that stays under Telegram's bulk-send limits.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultInterval   = 1500 * time.Millisecond
	DefaultPauseEvery = 50
	DefaultPause      = 10 * time.Second

	summaryTimeout = 10 * time.Second
)

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// Operator receives the summary when a run ends.
	Operator   int64
	Interval   time.Duration
	PauseEvery int
	Pause      time.Duration
}

type Report struct {
	Sent  int
	Total int
}

type Throttler struct {
	sender Sender
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger

	// base outlives the request that starts a run; cancelling it aborts
	// every run in progress.
	base context.Context
	wg   sync.WaitGroup
}

func New(base context.Context, sender Sender, clk clock.Clock, cfg Config, logger *zap.Logger) *Throttler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PauseEvery <= 0 {
		cfg.PauseEvery = DefaultPauseEvery
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultPause
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttler{sender: sender, clock: clk, cfg: cfg, logger: logger, base: base}
}

// Start launches a run in the background and returns immediately.
func (t *Throttler) Start(recipients []int64, text string) {
	recipients = append([]int64(nil), recipients...)
	t.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("Broadcast panicked", zap.Any("panic", r))
			}
		}()
		t.Run(t.base, recipients, text)
	})
}

// Wait blocks until every started run has returned.
func (t *Throttler) Wait() { t.wg.Wait() }

// Run sends text to each recipient in order. Individual failures are
// logged and skipped. The operator gets a summary even when ctx ends the
// run early.
func (t *Throttler) Run(ctx context.Context, recipients []int64, text string) Report {
	report := Report{Total: len(recipients)}
	log := t.logger.With(zap.Int("recipients", report.Total))
	log.Info("Broadcast started")

	for i, id := range recipients {
		if ctx.Err() != nil {
			break
		}
		if err := t.sender.Send(ctx, id, text); err != nil {
			metrics.BroadcastSends.WithLabelValues("failed").Inc()
			log.Warn("Failed to deliver broadcast", zap.Int64("chat_id", id), zap.Error(err))
		} else {
			metrics.BroadcastSends.WithLabelValues("ok").Inc()
			report.Sent++
		}

		n := i + 1
		if n == len(recipients) {
			break
		}
		if err := t.clock.Sleep(ctx, t.cfg.Interval); err != nil {
			break
		}
		if n%t.cfg.PauseEvery == 0 {
			if err := t.clock.Sleep(ctx, t.cfg.Pause); err != nil {
				break
			}
		}
	}

	log.Info("Broadcast finished", zap.Int("sent", report.Sent))
	t.sendSummary(ctx, report)
	return report
}

func (t *Throttler) sendSummary(ctx context.Context, report Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()

	text := fmt.Sprintf("✅ Broadcast finished. Reached %d/%d users.", report.Sent, report.Total)
	if err := t.sender.Send(ctx, t.cfg.Operator, text); err != nil {
		t.logger.Warn("Failed to send broadcast summary", zap.Error(err))
	}
}
