package models

import "time"

type AccessKey struct {
	KeyString    string     `json:"key_string" db:"key_string"`
	DurationDays int        `json:"duration_days" db:"duration_days"`
	IsUsed       bool       `json:"is_used" db:"is_used"`
	UsedBy       *int64     `json:"used_by,omitempty" db:"used_by"`
	UsedAt       *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Redemption is the outcome of consuming an access key.
type Redemption struct {
	DurationDays  int       `json:"duration_days"`
	PremiumExpiry time.Time `json:"premium_expiry"`
}
