// Package bot routes chat commands to the account, quota and search
// components and renders their outcomes as replies.
package bot

import (
	"context"
	"sync"
	"time"

	"nexus-bot/internal/account"
	"nexus-bot/internal/admission"
	"nexus-bot/internal/broadcast"
	"nexus-bot/internal/clock"
	"nexus-bot/internal/database"
	"nexus-bot/internal/delivery"
	"nexus-bot/internal/floodguard"
	"nexus-bot/internal/nexus"
	"nexus-bot/internal/quota"
	"nexus-bot/internal/telegram"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
}

type Searcher interface {
	CheckReady(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) nexus.ResultSet
}

type Broadcaster interface {
	Start(recipients []int64, text string)
}

type Config struct {
	Messenger   Messenger
	Store       database.Store
	Ledger      *quota.Ledger
	Accounts    *account.Service
	Searcher    Searcher
	Admission   *admission.Controller
	Delivery    *delivery.Strategist
	Broadcaster Broadcaster
	// Flood is optional.
	Flood *floodguard.Guard
	Clock clock.Clock

	Operator int64
	// Username is the bot's own handle, used for referral links and for
	// @-addressed commands in groups.
	Username string
	// BroadcastInterval is quoted in the broadcast start notice.
	BroadcastInterval time.Duration
	Logger            *zap.Logger
}

type handlerFunc func(ctx context.Context, req *request)

type Bot struct {
	cfg      Config
	logger   *zap.Logger
	handlers map[string]handlerFunc
	admin    map[string]bool

	base context.Context
	wg   sync.WaitGroup
}

// request is one inbound command.
type request struct {
	msg    *telegram.Message
	sender int64
	cmd    command
	logger *zap.Logger
}

// New builds a bot whose handlers run on base; cancelling it stops work
// that has not started yet and aborts waits in progress.
func New(base context.Context, cfg Config) *Bot {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = broadcast.DefaultInterval
	}

	b := &Bot{cfg: cfg, logger: cfg.Logger, base: base}
	b.handlers = map[string]handlerFunc{
		"start":     b.handleStart,
		"help":      b.handleHelp,
		"search":    b.handleSearch,
		"redeem":    b.handleRedeem,
		"account":   b.handleAccount,
		"stats":     b.handleStats,
		"genkey":    b.handleGenkey,
		"ban":       b.handleBan,
		"unban":     b.handleUnban,
		"broadcast": b.handleBroadcast,
	}
	b.admin = map[string]bool{"genkey": true, "ban": true, "unban": true, "broadcast": true}
	return b
}

// HandleUpdate hands the update to its own goroutine and returns, so a
// long search never holds up intake.
func (b *Bot) HandleUpdate(_ context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	b.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Handler panicked", zap.Any("panic", r), zap.Int64("update_id", u.UpdateID))
			}
		}()
		b.handle(b.base, msg)
	})
}

// Wait blocks until every dispatched handler has returned.
func (b *Bot) Wait() { b.wg.Wait() }

func (b *Bot) handle(ctx context.Context, msg *telegram.Message) {
	cmd, ok := parseCommand(msg.Text)
	if !ok || !cmd.addressedTo(b.cfg.Username) {
		return
	}
	h, ok := b.handlers[cmd.name]
	if !ok {
		return
	}

	req := &request{
		msg:    msg,
		sender: msg.From.ID,
		cmd:    cmd,
		logger: b.logger.With(
			zap.String("request_id", uuid.NewString()),
			zap.String("command", cmd.name),
			zap.Int64("user_id", msg.From.ID),
		),
	}

	if b.cfg.Flood != nil {
		switch b.cfg.Flood.Check(req.sender) {
		case floodguard.Warn:
			b.reply(ctx, req, msgSlowDown)
			return
		case floodguard.Drop:
			return
		}
	}

	if b.admin[cmd.name] && req.sender != b.cfg.Operator {
		req.logger.Warn("Admin command from non-operator")
		b.reply(ctx, req, msgRestricted)
		return
	}

	h(ctx, req)
}

// reply answers req in its chat. Failures are logged; the returned message
// is nil in that case.
func (b *Bot) reply(ctx context.Context, req *request, text string) *telegram.Message {
	sent, err := b.cfg.Messenger.SendMessage(ctx, req.msg.Chat.ID, text, req.msg.MessageID)
	if err != nil {
		req.logger.Error("Failed to send reply", zap.Error(err))
		return nil
	}
	return sent
}

func (b *Bot) edit(ctx context.Context, req *request, msg *telegram.Message, text string) {
	if err := b.cfg.Messenger.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
		req.logger.Error("Failed to edit message", zap.Error(err))
	}
}

// notify sends a standalone message to chatID, best effort.
func (b *Bot) notify(ctx context.Context, req *request, chatID int64, text string) {
	if _, err := b.cfg.Messenger.SendMessage(ctx, chatID, text, 0); err != nil {
		req.logger.Warn("Failed to notify user", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
