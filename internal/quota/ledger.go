// Package quota enforces the per-tier daily search allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/database"
	"nexus-bot/internal/metrics"
	"nexus-bot/internal/models"

	"go.uber.org/zap"
)

// Window is the length of one usage epoch.
const Window = 24 * time.Hour

// Policy is the allowance of one tier.
type Policy struct {
	// Searches per epoch.
	Daily int
	// Result lines requested from each backend file.
	Depth int
}

var policies = map[models.Tier]Policy{
	models.TierFree:    {Daily: 1, Depth: 10},
	models.TierPremium: {Daily: 5, Depth: 50},
}

func PolicyFor(tier models.Tier) Policy {
	if p, ok := policies[tier]; ok {
		return p
	}
	return policies[models.TierFree]
}

// Decision is an admitted attempt. It holds one reserved unit of the
// user's allowance until Commit or Release is called.
type Decision struct {
	UserID int64
	Tier   models.Tier
	Limit  int
	Depth  int

	// epoch is the last_reset the unit was reserved under.
	epoch   time.Time
	settled bool
}

type Ledger struct {
	store  database.Store
	clock  clock.Clock
	logger *zap.Logger
}

func NewLedger(store database.Store, clk clock.Clock, logger *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, clock: clk, logger: logger}
}

// ResolveTier returns the account with a lapsed premium demoted to free.
// The demotion is persisted before the record is returned. Unknown users
// are created on the fly.
func (l *Ledger) ResolveTier(ctx context.Context, userID int64) (*models.User, error) {
	now := l.clock.Now()

	user, _, err := l.store.CreateUser(ctx, userID, nil, now)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Tier != models.TierPremium || user.PremiumActive(now) {
		return user, nil
	}

	demoted, err := l.store.DemoteExpiredPremium(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("demote expired premium: %w", err)
	}
	if demoted {
		l.logger.Info("Premium expired, account demoted", zap.Int64("user_id", userID))
	}
	user.Tier = models.TierFree
	return user, nil
}

// CheckAndConsume admits or rejects one search attempt. The epoch reset is
// applied whether or not the attempt is admitted; the unit itself is taken
// with a conditional increment, so concurrent attempts from the same user
// can never push the counter past the limit.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID int64) (*Decision, error) {
	user, err := l.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrBanned
	}

	policy := PolicyFor(user.Tier)

	reset, err := l.store.ResetUsageIfElapsed(ctx, userID, l.clock.Now(), Window)
	if err != nil {
		return nil, fmt.Errorf("reset usage: %w", err)
	}
	if reset {
		l.logger.Debug("Usage epoch reset", zap.Int64("user_id", userID))
	}

	epoch, ok, err := l.store.ReserveSearch(ctx, userID, policy.Daily)
	if err != nil {
		return nil, fmt.Errorf("reserve search: %w", err)
	}
	if !ok {
		metrics.QuotaRejections.WithLabelValues(string(user.Tier)).Inc()
		return nil, &LimitError{Limit: policy.Daily}
	}

	return &Decision{
		UserID: userID,
		Tier:   user.Tier,
		Limit:  policy.Daily,
		Depth:  policy.Depth,
		epoch:  epoch,
	}, nil
}

// Commit keeps the reserved unit and adds results to the global counters.
// Zero results is a valid commit.
func (l *Ledger) Commit(ctx context.Context, d *Decision, results int) error {
	if d == nil || d.settled {
		return nil
	}
	d.settled = true

	if err := l.store.RecordSearch(ctx, results); err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// Release refunds the reserved unit of an attempt that produced nothing.
// A unit reserved before the latest epoch reset is already gone, so its
// refund is dropped instead of eating into the new epoch.
func (l *Ledger) Release(ctx context.Context, d *Decision) error {
	if d == nil || d.settled {
		return nil
	}
	d.settled = true

	if err := l.store.ReleaseSearch(ctx, d.UserID, d.epoch); err != nil {
		return fmt.Errorf("release search: %w", err)
	}
	return nil
}
