package database

import (
	"context"
	"fmt"
	"time"

	"nexus-bot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the storage capability shared by the bot, the quota ledger and
// the background notifiers. Every mutation is a single atomic operation on
// one record (or a document-level transaction where two records change
// together), so concurrent handlers never lose updates.
type Store interface {
	Ping(ctx context.Context) error
	EnsureStats(ctx context.Context) error

	GetUser(ctx context.Context, id int64) (*models.User, error)
	// CreateUser inserts a fresh free account. The boolean is false when the
	// account already existed; the existing record is returned in that case.
	CreateUser(ctx context.Context, id int64, referredBy *int64, now time.Time) (*models.User, bool, error)
	DemoteExpiredPremium(ctx context.Context, id int64, now time.Time) (bool, error)
	ResetUsageIfElapsed(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error)
	// ReserveSearch increments the daily counter only while it is below limit
	// and returns the last_reset the unit was taken under.
	ReserveSearch(ctx context.Context, id int64, limit int) (time.Time, bool, error)
	// ReleaseSearch refunds a unit taken under epoch. Once the counter has
	// been reset since, the refund is dropped.
	ReleaseSearch(ctx context.Context, id int64, epoch time.Time) error
	RecordSearch(ctx context.Context, results int) error
	// AddReferral increments the referrer's count and, on every multiple of
	// every, grants rewardDays of premium stacked onto the later of now and
	// the current expiry.
	AddReferral(ctx context.Context, referrerID int64, every, rewardDays int, now time.Time) (int, bool, error)
	SetBanned(ctx context.Context, id int64, banned bool) (bool, error)

	CreateKey(ctx context.Context, key string, days int, now time.Time) (*models.AccessKey, error)
	RedeemKey(ctx context.Context, key string, userID int64, now time.Time) (*models.Redemption, error)

	ListUserIDs(ctx context.Context) ([]int64, error)
	ListExpiringPremium(ctx context.Context, now time.Time, window time.Duration) ([]models.User, error)
	MarkExpiryNotified(ctx context.Context, id int64) error
	GetStats(ctx context.Context, now time.Time) (*models.StatsSummary, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	*Queries
}

var _ Store = (*PostgresStore)(nil)

func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		Queries: New(pool),
	}
}

// Connect opens a pool for source. A non-empty name overrides the database
// named in the connection string.
func Connect(ctx context.Context, source, name string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(source)
	if err != nil {
		return nil, fmt.Errorf("parse db source: %w", err)
	}
	if name != "" {
		cfg.ConnConfig.Database = name
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PostgresStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RedeemKey consumes the key and extends the redeemer's premium in one
// transaction, so a key is never burned for an account that does not exist.
func (s *PostgresStore) RedeemKey(ctx context.Context, key string, userID int64, now time.Time) (*models.Redemption, error) {
	var redemption *models.Redemption
	err := s.ExecTx(ctx, func(q *Queries) error {
		days, err := q.consumeKey(ctx, key, userID, now)
		if err != nil {
			return err
		}
		expiry, err := q.extendPremium(ctx, userID, days, now)
		if err != nil {
			return err
		}
		redemption = &models.Redemption{DurationDays: days, PremiumExpiry: expiry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}
