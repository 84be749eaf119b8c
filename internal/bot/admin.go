package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"

	"go.uber.org/zap"
)

func (b *Bot) handleGenkey(ctx context.Context, req *request) {
	days, err := strconv.Atoi(req.cmd.args)
	if err != nil || days <= 0 {
		b.reply(ctx, req, usageGenkey)
		return
	}

	key, err := b.cfg.Accounts.GenerateKey(ctx, days)
	if err != nil {
		req.logger.Error("Failed to generate key", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	req.logger.Info("Key generated", zap.Int("days", days))
	b.reply(ctx, req, fmt.Sprintf("✅ Key generated for %d days:\n\n<code>%s</code>",
		days, html.EscapeString(key.KeyString)))
}

func (b *Bot) handleBan(ctx context.Context, req *request) {
	b.setBanned(ctx, req, true, usageBan)
}

func (b *Bot) handleUnban(ctx context.Context, req *request) {
	b.setBanned(ctx, req, false, usageUnban)
}

func (b *Bot) setBanned(ctx context.Context, req *request, banned bool, usage string) {
	target, err := strconv.ParseInt(req.cmd.args, 10, 64)
	if err != nil {
		b.reply(ctx, req, usage)
		return
	}

	found, err := b.cfg.Accounts.SetBanned(ctx, target, banned)
	if err != nil {
		req.logger.Error("Failed to update ban", zap.Int64("target", target), zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	if !found {
		b.reply(ctx, req, msgUserNotFound)
		return
	}

	verb := "banned"
	if !banned {
		verb = "unbanned"
	}
	b.reply(ctx, req, fmt.Sprintf("✅ User %d has been %s.", target, verb))
}

// handleBroadcast answers at once and leaves delivery to the throttler.
func (b *Bot) handleBroadcast(ctx context.Context, req *request) {
	text := req.cmd.args
	if text == "" {
		b.reply(ctx, req, usageBroadcast)
		return
	}

	ids, err := b.cfg.Store.ListUserIDs(ctx)
	if err != nil {
		req.logger.Error("Failed to list users", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	if len(ids) == 0 {
		b.reply(ctx, req, msgNoRecipients)
		return
	}

	b.reply(ctx, req, fmt.Sprintf("📣 Starting broadcast to %d users. "+
		"Sending at a safe rate of ~1 message per %gs to avoid flood limits.", len(ids), b.cfg.BroadcastInterval.Seconds()))
	// Sends use HTML parse mode; operator text goes out literally.
	b.cfg.Broadcaster.Start(ids, html.EscapeString(text))
}
