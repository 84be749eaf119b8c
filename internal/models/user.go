package models

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type User struct {
	ID             int64      `json:"id" db:"user_id"`
	Tier           Tier       `json:"tier" db:"tier"`
	PremiumExpiry  *time.Time `json:"premium_expiry,omitempty" db:"premium_expiry"`
	SearchesToday  int        `json:"searches_today" db:"searches_today"`
	LastReset      time.Time  `json:"last_reset" db:"last_reset"`
	IsBanned       bool       `json:"is_banned" db:"is_banned"`
	ReferredBy     *int64     `json:"referred_by,omitempty" db:"referred_by"`
	ReferralCount  int        `json:"referral_count" db:"referral_count"`
	NotifiedExpiry bool       `json:"notified_expiry" db:"notified_expiry"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// PremiumActive reports whether the account is premium at now. A premium
// account without an expiry is still pending assignment and counts as active.
func (u *User) PremiumActive(now time.Time) bool {
	if u.Tier != TierPremium {
		return false
	}
	return u.PremiumExpiry == nil || u.PremiumExpiry.After(now)
}
