package sqlite

import (
	"time"

	"nexus-bot/internal/models"
)

type userRow struct {
	UserID         int64      `gorm:"primaryKey;autoIncrement:false"`
	Tier           string     `gorm:"not null;default:free;index:idx_users_tier_expiry"`
	PremiumExpiry  *time.Time `gorm:"index:idx_users_tier_expiry"`
	SearchesToday  int        `gorm:"not null;default:0"`
	LastReset      time.Time  `gorm:"not null"`
	IsBanned       bool       `gorm:"not null;default:false"`
	ReferredBy     *int64
	ReferralCount  int       `gorm:"not null;default:0"`
	NotifiedExpiry bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) model() *models.User {
	u := &models.User{
		ID:             r.UserID,
		Tier:           models.Tier(r.Tier),
		SearchesToday:  r.SearchesToday,
		LastReset:      r.LastReset.UTC(),
		IsBanned:       r.IsBanned,
		ReferredBy:     r.ReferredBy,
		ReferralCount:  r.ReferralCount,
		NotifiedExpiry: r.NotifiedExpiry,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.PremiumExpiry != nil {
		expiry := r.PremiumExpiry.UTC()
		u.PremiumExpiry = &expiry
	}
	return u
}

type keyRow struct {
	KeyString    string `gorm:"primaryKey"`
	DurationDays int    `gorm:"not null"`
	IsUsed       bool   `gorm:"not null;default:false"`
	UsedBy       *int64
	UsedAt       *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

func (keyRow) TableName() string { return "access_keys" }

func (r *keyRow) model() *models.AccessKey {
	return &models.AccessKey{
		KeyString:    r.KeyString,
		DurationDays: r.DurationDays,
		IsUsed:       r.IsUsed,
		UsedBy:       r.UsedBy,
		UsedAt:       r.UsedAt,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type statsRow struct {
	ID            string `gorm:"primaryKey"`
	TotalSearches int64  `gorm:"not null;default:0"`
	TotalResults  int64  `gorm:"not null;default:0"`
}

func (statsRow) TableName() string { return "bot_stats" }
