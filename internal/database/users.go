package database

import (
	"context"
	"errors"
	"time"

	"nexus-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `user_id, tier, premium_expiry, searches_today, last_reset, is_banned,
	referred_by, referral_count, notified_expiry, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Tier,
		&user.PremiumExpiry,
		&user.SearchesToday,
		&user.LastReset,
		&user.IsBanned,
		&user.ReferredBy,
		&user.ReferralCount,
		&user.NotifiedExpiry,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (q *Queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (q *Queries) CreateUser(ctx context.Context, id int64, referredBy *int64, now time.Time) (*models.User, bool, error) {
	query := `
		INSERT INTO users (user_id, tier, searches_today, last_reset, referred_by, created_at)
		VALUES ($1, $2, 0, $3, $4, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query, id, models.TierFree, now, referredBy))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := q.GetUser(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, ErrUserNotFound
	}
	return existing, false, nil
}

func (q *Queries) DemoteExpiredPremium(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET tier = $2
		WHERE user_id = $1 AND tier = $3 AND premium_expiry IS NOT NULL AND premium_expiry <= $4
	`
	res, err := q.db.Exec(ctx, query, id, models.TierFree, models.TierPremium, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) ResetUsageIfElapsed(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error) {
	query := `
		UPDATE users
		SET searches_today = 0, last_reset = $2
		WHERE user_id = $1 AND last_reset <= $3
	`
	res, err := q.db.Exec(ctx, query, id, now, now.Add(-window))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) ReserveSearch(ctx context.Context, id int64, limit int) (time.Time, bool, error) {
	query := `
		UPDATE users
		SET searches_today = searches_today + 1
		WHERE user_id = $1 AND searches_today < $2
		RETURNING last_reset
	`
	var epoch time.Time
	err := q.db.QueryRow(ctx, query, id, limit).Scan(&epoch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return epoch.UTC(), true, nil
}

func (q *Queries) ReleaseSearch(ctx context.Context, id int64, epoch time.Time) error {
	query := `
		UPDATE users
		SET searches_today = searches_today - 1
		WHERE user_id = $1 AND last_reset = $2 AND searches_today > 0
	`
	_, err := q.db.Exec(ctx, query, id, epoch)
	return err
}

func (q *Queries) AddReferral(ctx context.Context, referrerID int64, every, rewardDays int, now time.Time) (int, bool, error) {
	query := `
		UPDATE users
		SET
			referral_count = referral_count + 1,
			tier = CASE WHEN (referral_count + 1) % $2::int = 0 THEN $5 ELSE tier END,
			premium_expiry = CASE WHEN (referral_count + 1) % $2::int = 0
				THEN GREATEST(COALESCE(premium_expiry, $3::timestamptz), $3::timestamptz) + make_interval(days => $4::int)
				ELSE premium_expiry END,
			notified_expiry = CASE WHEN (referral_count + 1) % $2::int = 0 THEN FALSE ELSE notified_expiry END
		WHERE user_id = $1
		RETURNING referral_count
	`
	var count int
	err := q.db.QueryRow(ctx, query, referrerID, every, now, rewardDays, models.TierPremium).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrUserNotFound
		}
		return 0, false, err
	}
	return count, count%every == 0, nil
}

func (q *Queries) extendPremium(ctx context.Context, id int64, days int, now time.Time) (time.Time, error) {
	query := `
		UPDATE users
		SET
			tier = $4,
			premium_expiry = GREATEST(COALESCE(premium_expiry, $2::timestamptz), $2::timestamptz) + make_interval(days => $3::int),
			notified_expiry = FALSE
		WHERE user_id = $1
		RETURNING premium_expiry
	`
	var expiry time.Time
	err := q.db.QueryRow(ctx, query, id, now, days, models.TierPremium).Scan(&expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrUserNotFound
		}
		return time.Time{}, err
	}
	return expiry, nil
}

func (q *Queries) SetBanned(ctx context.Context, id int64, banned bool) (bool, error) {
	query := `UPDATE users SET is_banned = $2 WHERE user_id = $1`
	res, err := q.db.Exec(ctx, query, id, banned)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if ids == nil {
		return []int64{}, nil
	}

	return ids, nil
}

func (q *Queries) ListExpiringPremium(ctx context.Context, now time.Time, window time.Duration) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE tier = $1 AND premium_expiry > $2 AND premium_expiry <= $3 AND NOT notified_expiry
		ORDER BY premium_expiry
	`
	rows, err := q.db.Query(ctx, query, models.TierPremium, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if users == nil {
		return []models.User{}, nil
	}

	return users, nil
}

func (q *Queries) MarkExpiryNotified(ctx context.Context, id int64) error {
	res, err := q.db.Exec(ctx, `UPDATE users SET notified_expiry = TRUE WHERE user_id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
