package database

import (
	"context"
	"time"

	"nexus-bot/internal/models"
)

func (q *Queries) EnsureStats(ctx context.Context) error {
	query := `INSERT INTO bot_stats (id, total_searches, total_results) VALUES ($1, 0, 0) ON CONFLICT (id) DO NOTHING`
	_, err := q.db.Exec(ctx, query, StatsID)
	return err
}

func (q *Queries) RecordSearch(ctx context.Context, results int) error {
	query := `
		INSERT INTO bot_stats (id, total_searches, total_results)
		VALUES ($1, 1, $2)
		ON CONFLICT (id) DO UPDATE
		SET total_searches = bot_stats.total_searches + 1,
			total_results = bot_stats.total_results + EXCLUDED.total_results
	`
	_, err := q.db.Exec(ctx, query, StatsID, results)
	return err
}

func (q *Queries) GetStats(ctx context.Context, now time.Time) (*models.StatsSummary, error) {
	var summary models.StatsSummary

	err := q.db.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT total_searches FROM bot_stats WHERE id = $1), 0),
			COALESCE((SELECT total_results FROM bot_stats WHERE id = $1), 0)
	`, StatsID).Scan(&summary.TotalSearches, &summary.TotalResults)
	if err != nil {
		return nil, err
	}

	err = q.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE tier = $1 AND (premium_expiry IS NULL OR premium_expiry > $2))
		FROM users
	`, models.TierPremium, now).Scan(&summary.TotalUsers, &summary.PremiumUsers)
	if err != nil {
		return nil, err
	}
	summary.FreeUsers = summary.TotalUsers - summary.PremiumUsers

	return &summary, nil
}
