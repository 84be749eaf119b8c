package bot

import (
	"context"
	"errors"

	"nexus-bot/internal/delivery"
	"nexus-bot/internal/metrics"
	"nexus-bot/internal/quota"

	"go.uber.org/zap"
)

// handleSearch runs the full pipeline: quota, readiness, queue, fan-out,
// delivery, and finally commit or refund of the reserved search.
func (b *Bot) handleSearch(ctx context.Context, req *request) {
	query := req.cmd.args
	if query == "" {
		b.reply(ctx, req, usageSearch)
		return
	}

	decision, err := b.cfg.Ledger.CheckAndConsume(ctx, req.sender)
	if err != nil {
		var limitErr *quota.LimitError
		switch {
		case errors.Is(err, quota.ErrBanned):
			b.reply(ctx, req, msgBanned)
		case errors.As(err, &limitErr):
			b.reply(ctx, req, limitText(limitErr.Limit))
		default:
			req.logger.Error("Failed to check quota", zap.Error(err))
			metrics.Searches.WithLabelValues("error").Inc()
			b.reply(ctx, req, msgInternal)
		}
		return
	}
	log := req.logger.With(zap.String("tier", string(decision.Tier)))

	// Anything that returns before a result exists hands the unit back.
	settled := false
	defer func() {
		if settled {
			return
		}
		if err := b.cfg.Ledger.Release(context.WithoutCancel(ctx), decision); err != nil {
			log.Error("Failed to release reserved search", zap.Error(err))
		}
	}()

	if err := b.cfg.Searcher.CheckReady(ctx); err != nil {
		metrics.Searches.WithLabelValues("not_ready").Inc()
		b.reply(ctx, req, readinessText(err))
		return
	}

	status := b.reply(ctx, req, msgQueued)
	if status == nil {
		return
	}

	if err := b.cfg.Admission.Acquire(ctx); err != nil {
		log.Warn("Gave up waiting for a search slot", zap.Error(err))
		return
	}
	defer b.cfg.Admission.Release()

	b.edit(ctx, req, status, msgProcessing)

	rs := b.cfg.Searcher.Search(ctx, query, decision.Depth)
	out := b.cfg.Delivery.Deliver(ctx, rs, func() {
		b.edit(ctx, req, status, msgUploading)
	})
	b.edit(ctx, req, status, out.Text)

	metrics.Searches.WithLabelValues(outcomeLabel(out.Kind)).Inc()
	log.Info("Search finished",
		zap.String("outcome", out.Kind.String()),
		zap.Int("lines", rs.Len()),
		zap.Int("failures", rs.Failures()))

	if !out.Commit {
		return
	}
	settled = true
	if err := b.cfg.Ledger.Commit(context.WithoutCancel(ctx), decision, out.Results); err != nil {
		log.Error("Failed to record search", zap.Error(err))
	}
}

func outcomeLabel(k delivery.Kind) string {
	switch k {
	case delivery.KindEmpty:
		return "empty"
	case delivery.KindFailed:
		return "failed"
	}
	return "results"
}
