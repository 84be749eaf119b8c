// Package account covers onboarding with referrals, key generation and
// redemption, and operator moderation.
package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/database"
	"nexus-bot/internal/models"

	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

const (
	// ReferralsPerReward referrals earn RewardDays of premium.
	ReferralsPerReward = 5
	RewardDays         = 7

	KeyPrefix      = "NEXUS-"
	keyAlphabet    = "0123456789ABCDEF"
	keyLength      = 8
	keyGenAttempts = 5
)

var (
	ErrInvalidKey      = errors.New("invalid or already used key")
	ErrInvalidDuration = errors.New("key duration must be a positive number of days")
)

type Service struct {
	store  database.Store
	clock  clock.Clock
	newKey func() string
	logger *zap.Logger
}

func NewService(store database.Store, clk clock.Clock, logger *zap.Logger) (*Service, error) {
	gen, err := nanoid.CustomASCII(keyAlphabet, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key generator: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clk, newKey: gen, logger: logger}, nil
}

// Registration describes what /start did.
type Registration struct {
	User    *models.User
	Created bool
	// Referrer is set when the new account was credited to someone.
	Referrer *int64
	// Rewarded is true when the credit completed a batch of referrals.
	Rewarded bool
}

// Register creates the account on first contact. ref is the deep-link
// payload; it counts as a referral only for a brand new account, when it is
// a numeric id other than the user's own, and that account exists.
func (s *Service) Register(ctx context.Context, userID int64, ref string) (*Registration, error) {
	now := s.clock.Now()

	referrer, err := s.resolveReferrer(ctx, userID, ref)
	if err != nil {
		return nil, err
	}

	user, created, err := s.store.CreateUser(ctx, userID, referrer, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	reg := &Registration{User: user, Created: created}
	if !created || referrer == nil {
		return reg, nil
	}

	count, rewarded, err := s.store.AddReferral(ctx, *referrer, ReferralsPerReward, RewardDays, now)
	if err != nil {
		// The account exists; a lost credit must not fail onboarding.
		s.logger.Error("Failed to credit referral", zap.Int64("referrer", *referrer), zap.Int64("user_id", userID), zap.Error(err))
		return reg, nil
	}
	s.logger.Info("Referral credited",
		zap.Int64("referrer", *referrer), zap.Int64("user_id", userID),
		zap.Int("count", count), zap.Bool("rewarded", rewarded))

	reg.Referrer = referrer
	reg.Rewarded = rewarded
	return reg, nil
}

func (s *Service) resolveReferrer(ctx context.Context, userID int64, ref string) (*int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 || id == userID {
		return nil, nil
	}

	existing, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	referrer, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load referrer: %w", err)
	}
	if referrer == nil {
		return nil, nil
	}
	return &id, nil
}

// Ensure returns the account, creating it when missing.
func (s *Service) Ensure(ctx context.Context, userID int64) (*models.User, error) {
	user, _, err := s.store.CreateUser(ctx, userID, nil, s.clock.Now())
	return user, err
}

// GenerateKey mints a single-use premium key worth days.
func (s *Service) GenerateKey(ctx context.Context, days int) (*models.AccessKey, error) {
	if days <= 0 {
		return nil, ErrInvalidDuration
	}
	for range keyGenAttempts {
		key, err := s.store.CreateKey(ctx, KeyPrefix+s.newKey(), days, s.clock.Now())
		if errors.Is(err, database.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("create key: %w after %d attempts", database.ErrDuplicateKey, keyGenAttempts)
}

// Redeem consumes key for userID and extends their premium.
func (s *Service) Redeem(ctx context.Context, userID int64, key string) (*models.Redemption, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}
	if _, err := s.Ensure(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	r, err := s.store.RedeemKey(ctx, key, userID, s.clock.Now())
	if err != nil {
		if errors.Is(err, database.ErrKeyUnavailable) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("redeem key: %w", err)
	}
	s.logger.Info("Key redeemed", zap.Int64("user_id", userID), zap.Int("days", r.DurationDays))
	return r, nil
}

// SetBanned reports false when no account has that id.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool) (bool, error) {
	found, err := s.store.SetBanned(ctx, userID, banned)
	if err != nil {
		return false, fmt.Errorf("set banned: %w", err)
	}
	if found {
		s.logger.Info("Ban updated", zap.Int64("user_id", userID), zap.Bool("banned", banned))
	}
	return found, nil
}

// ReferralsUntilReward is how many more referrals complete the next batch.
func ReferralsUntilReward(count int) int {
	return ReferralsPerReward - count%ReferralsPerReward
}
