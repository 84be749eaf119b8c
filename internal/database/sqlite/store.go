// Package sqlite stores bot state in a single SQLite file through gorm, for
// deployments without a Postgres server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nexus-bot/internal/database"
	"nexus-bot/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ database.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and migrates
// the tables. SQLite allows a single writer, so the pool is capped at one
// connection and writers queue instead of failing with SQLITE_BUSY.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database, %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &keyRow{}, &statsRow{}); err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) EnsureStats(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&statsRow{ID: database.StatsID}).
		Error
}

func (s *Store) users(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&userRow{})
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("user_id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.model(), nil
}

func (s *Store) CreateUser(ctx context.Context, id int64, referredBy *int64, now time.Time) (*models.User, bool, error) {
	now = now.UTC()
	row := userRow{
		UserID:     id,
		Tier:       string(models.TierFree),
		LastReset:  now,
		ReferredBy: referredBy,
		CreatedAt:  now,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return row.model(), true, nil
	}

	existing, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, database.ErrUserNotFound
	}
	return existing, false, nil
}

func (s *Store) DemoteExpiredPremium(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := s.users(ctx).
		Where("user_id = ? AND tier = ? AND premium_expiry IS NOT NULL AND premium_expiry <= ?", id, models.TierPremium, now.UTC()).
		Update("tier", string(models.TierFree))
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ResetUsageIfElapsed(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error) {
	now = now.UTC()
	res := s.users(ctx).
		Where("user_id = ? AND last_reset <= ?", id, now.Add(-window)).
		Updates(map[string]any{"searches_today": 0, "last_reset": now})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ReserveSearch(ctx context.Context, id int64, limit int) (time.Time, bool, error) {
	var (
		epoch    time.Time
		reserved bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRow{}).
			Where("user_id = ? AND searches_today < ?", id, limit).
			UpdateColumn("searches_today", gorm.Expr("searches_today + 1"))
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}

		var row userRow
		if err := tx.Select("last_reset").Where("user_id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		epoch, reserved = row.LastReset.UTC(), true
		return nil
	})
	return epoch, reserved, err
}

// ReleaseSearch compares the epoch in Go rather than in SQL, so the match
// does not depend on how the driver formats timestamps.
func (s *Store) ReleaseSearch(ctx context.Context, id int64, epoch time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		err := tx.Select("last_reset", "searches_today").Where("user_id = ?", id).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !row.LastReset.Equal(epoch) || row.SearchesToday == 0 {
			return nil
		}
		return tx.Model(&userRow{}).
			Where("user_id = ? AND searches_today > 0", id).
			UpdateColumn("searches_today", gorm.Expr("searches_today - 1")).
			Error
	})
}

func (s *Store) RecordSearch(ctx context.Context, results int) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_searches": gorm.Expr("bot_stats.total_searches + 1"),
				"total_results":  gorm.Expr("bot_stats.total_results + ?", results),
			}),
		}).
		Create(&statsRow{ID: database.StatsID, TotalSearches: 1, TotalResults: int64(results)}).
		Error
}

// extendPremium runs inside a transaction, which makes the read of the
// current expiry and the write of the new one a single unit.
func extendPremium(tx *gorm.DB, id int64, days int, now time.Time) (time.Time, error) {
	var row userRow
	if err := tx.Where("user_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, database.ErrUserNotFound
		}
		return time.Time{}, err
	}

	base := now
	if row.PremiumExpiry != nil && row.PremiumExpiry.After(now) {
		base = row.PremiumExpiry.UTC()
	}
	expiry := base.Add(time.Duration(days) * 24 * time.Hour)

	err := tx.Model(&userRow{}).Where("user_id = ?", id).Updates(map[string]any{
		"tier":            string(models.TierPremium),
		"premium_expiry":  expiry,
		"notified_expiry": false,
	}).Error
	return expiry, err
}

func (s *Store) AddReferral(ctx context.Context, referrerID int64, every, rewardDays int, now time.Time) (int, bool, error) {
	now = now.UTC()
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRow{}).
			Where("user_id = ?", referrerID).
			UpdateColumn("referral_count", gorm.Expr("referral_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return database.ErrUserNotFound
		}

		if err := tx.Model(&userRow{}).Where("user_id = ?", referrerID).Pluck("referral_count", &count).Error; err != nil {
			return err
		}
		if count%every != 0 {
			return nil
		}
		_, err := extendPremium(tx, referrerID, rewardDays, now)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return count, count%every == 0, nil
}

func (s *Store) SetBanned(ctx context.Context, id int64, banned bool) (bool, error) {
	res := s.users(ctx).Where("user_id = ?", id).UpdateColumn("is_banned", banned)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) CreateKey(ctx context.Context, key string, days int, now time.Time) (*models.AccessKey, error) {
	row := keyRow{KeyString: key, DurationDays: days, CreatedAt: now.UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, database.ErrDuplicateKey
	}
	return row.model(), nil
}

func (s *Store) RedeemKey(ctx context.Context, key string, userID int64, now time.Time) (*models.Redemption, error) {
	now = now.UTC()
	var redemption *models.Redemption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row keyRow
		if err := tx.Where("key_string = ? AND is_used = ?", key, false).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return database.ErrKeyUnavailable
			}
			return err
		}

		res := tx.Model(&keyRow{}).
			Where("key_string = ? AND is_used = ?", key, false).
			Updates(map[string]any{"is_used": true, "used_by": userID, "used_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return database.ErrKeyUnavailable
		}

		expiry, err := extendPremium(tx, userID, row.DurationDays, now)
		if err != nil {
			return err
		}
		redemption = &models.Redemption{DurationDays: row.DurationDays, PremiumExpiry: expiry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := s.users(ctx).Order("created_at, user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) ListExpiringPremium(ctx context.Context, now time.Time, window time.Duration) ([]models.User, error) {
	now = now.UTC()
	var rows []userRow
	err := s.db.WithContext(ctx).
		Where("tier = ? AND premium_expiry > ? AND premium_expiry <= ? AND notified_expiry = ?",
			models.TierPremium, now, now.Add(window), false).
		Order("premium_expiry").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	users := make([]models.User, len(rows))
	for i := range rows {
		users[i] = *rows[i].model()
	}
	return users, nil
}

func (s *Store) MarkExpiryNotified(ctx context.Context, id int64) error {
	res := s.users(ctx).Where("user_id = ?", id).UpdateColumn("notified_expiry", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return database.ErrUserNotFound
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, now time.Time) (*models.StatsSummary, error) {
	var summary models.StatsSummary

	var stats statsRow
	err := s.db.WithContext(ctx).Where("id = ?", database.StatsID).Take(&stats).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	summary.TotalSearches = stats.TotalSearches
	summary.TotalResults = stats.TotalResults

	if err := s.users(ctx).Count(&summary.TotalUsers).Error; err != nil {
		return nil, err
	}
	err = s.users(ctx).
		Where("tier = ? AND (premium_expiry IS NULL OR premium_expiry > ?)", models.TierPremium, now.UTC()).
		Count(&summary.PremiumUsers).
		Error
	if err != nil {
		return nil, err
	}
	summary.FreeUsers = summary.TotalUsers - summary.PremiumUsers

	return &summary, nil
}
