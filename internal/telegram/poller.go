package telegram

import (
	"context"
	"errors"
	"time"

	"nexus-bot/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultPollTimeout = 30 * time.Second
	pollBackoff        = 3 * time.Second
)

// Handler receives updates from either intake. HandleUpdate must return
// quickly; long work belongs on its own goroutine.
type Handler interface {
	HandleUpdate(ctx context.Context, update Update)
}

type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

type Poller struct {
	source  updateSource
	handler Handler
	timeout time.Duration
	backoff time.Duration
	logger  *zap.Logger
}

func NewPoller(source updateSource, handler Handler, timeout time.Duration, logger *zap.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{source: source, handler: handler, timeout: timeout, backoff: pollBackoff, logger: logger}
}

// Run polls until ctx is done. Failed polls are retried after a short
// backoff, or after the server's retry_after hint.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			wait := p.backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			p.logger.Warn("Failed to poll updates", zap.Error(err), zap.Duration("retry_in", wait))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			metrics.Updates.WithLabelValues("polling").Inc()
			p.handler.HandleUpdate(ctx, u)
		}
	}
}
