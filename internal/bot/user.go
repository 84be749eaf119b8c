package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"nexus-bot/internal/account"
	"nexus-bot/internal/models"
	"nexus-bot/internal/quota"

	"go.uber.org/zap"
)

func (b *Bot) handleStart(ctx context.Context, req *request) {
	reg, err := b.cfg.Accounts.Register(ctx, req.sender, req.cmd.args)
	if err != nil {
		req.logger.Error("Failed to register user", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	if reg.Rewarded && reg.Referrer != nil {
		b.notify(ctx, req, *reg.Referrer, msgReward)
	}
	b.reply(ctx, req, welcomeText(referralLink(b.cfg.Username, req.sender)))
}

func (b *Bot) handleHelp(ctx context.Context, req *request) {
	text := helpUser
	if req.sender == b.cfg.Operator {
		text += helpAdmin
	}
	b.reply(ctx, req, text)
}

func (b *Bot) handleRedeem(ctx context.Context, req *request) {
	if req.cmd.args == "" {
		b.reply(ctx, req, usageRedeem)
		return
	}

	r, err := b.cfg.Accounts.Redeem(ctx, req.sender, req.cmd.args)
	if err != nil {
		if errors.Is(err, account.ErrInvalidKey) {
			b.reply(ctx, req, msgInvalidKey)
			return
		}
		req.logger.Error("Failed to redeem key", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	b.reply(ctx, req, redeemedText(r.DurationDays, r.PremiumExpiry))
}

func (b *Bot) handleAccount(ctx context.Context, req *request) {
	user, err := b.cfg.Ledger.ResolveTier(ctx, req.sender)
	if err != nil {
		req.logger.Error("Failed to load account", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	b.reply(ctx, req, b.accountText(user))
}

func (b *Bot) accountText(u *models.User) string {
	now := b.cfg.Clock.Now()
	policy := quota.PolicyFor(u.Tier)

	used := u.SearchesToday
	if now.Sub(u.LastReset) >= quota.Window {
		used = 0
	}
	left := max(policy.Daily-used, 0)

	var sb strings.Builder
	sb.WriteString("👤 <b>Account Info</b>\n\n")
	fmt.Fprintf(&sb, "<b>ID:</b> <code>%d</code>\n", u.ID)
	fmt.Fprintf(&sb, "<b>Tier:</b> <code>%s</code>\n", tierLabel(u.Tier))
	fmt.Fprintf(&sb, "<b>Referrals:</b> <code>%d</code> (Need %d more for 1 week Premium!)\n",
		u.ReferralCount, account.ReferralsUntilReward(u.ReferralCount))
	fmt.Fprintf(&sb, "<b>Searches Left Today:</b> <code>%d/%d</code>\n", left, policy.Daily)
	if u.Tier == models.TierPremium && u.PremiumExpiry != nil {
		fmt.Fprintf(&sb, "<b>Premium Ends In:</b> <code>%s</code>\n", remaining(u.PremiumExpiry.Sub(now)))
	}
	fmt.Fprintf(&sb, "\n🎁 <b>Referral Link:</b>\n<code>%s</code>",
		html.EscapeString(referralLink(b.cfg.Username, u.ID)))
	return sb.String()
}

func (b *Bot) handleStats(ctx context.Context, req *request) {
	summary, err := b.cfg.Store.GetStats(ctx, b.cfg.Clock.Now())
	if err != nil {
		req.logger.Error("Failed to load stats", zap.Error(err))
		b.reply(ctx, req, msgInternal)
		return
	}
	b.reply(ctx, req, statsText(summary))
}
