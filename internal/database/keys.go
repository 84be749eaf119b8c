package database

import (
	"context"
	"errors"
	"time"

	"nexus-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (q *Queries) CreateKey(ctx context.Context, key string, days int, now time.Time) (*models.AccessKey, error) {
	query := `
		INSERT INTO access_keys (key_string, duration_days, is_used, created_at)
		VALUES ($1, $2, FALSE, $3)
		RETURNING key_string, duration_days, is_used, used_by, used_at, created_at
	`
	var k models.AccessKey
	err := q.db.QueryRow(ctx, query, key, days, now).Scan(
		&k.KeyString,
		&k.DurationDays,
		&k.IsUsed,
		&k.UsedBy,
		&k.UsedAt,
		&k.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &k, nil
}

func (q *Queries) GetKey(ctx context.Context, key string) (*models.AccessKey, error) {
	query := `
		SELECT key_string, duration_days, is_used, used_by, used_at, created_at
		FROM access_keys
		WHERE key_string = $1
	`
	var k models.AccessKey
	err := q.db.QueryRow(ctx, query, key).Scan(
		&k.KeyString,
		&k.DurationDays,
		&k.IsUsed,
		&k.UsedBy,
		&k.UsedAt,
		&k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

// consumeKey flips the used flag only if it is still unset, so exactly one
// caller wins a given key.
func (q *Queries) consumeKey(ctx context.Context, key string, userID int64, now time.Time) (int, error) {
	query := `
		UPDATE access_keys
		SET is_used = TRUE, used_by = $2, used_at = $3
		WHERE key_string = $1 AND NOT is_used
		RETURNING duration_days
	`
	var days int
	err := q.db.QueryRow(ctx, query, key, userID, now).Scan(&days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrKeyUnavailable
		}
		return 0, err
	}
	return days, nil
}
