// Package memory is an in-process implementation of database.Store. It is
// safe for concurrent use and suitable for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"nexus-bot/internal/database"
	"nexus-bot/internal/models"
)

type Store struct {
	mu    sync.Mutex
	users map[int64]*models.User
	keys  map[string]*models.AccessKey
	stats models.Stats
}

var _ database.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users: make(map[int64]*models.User),
		keys:  make(map[string]*models.AccessKey),
	}
}

func (s *Store) Ping(ctx context.Context) error        { return ctx.Err() }
func (s *Store) EnsureStats(ctx context.Context) error { return nil }

func copyUser(u *models.User) *models.User {
	out := *u
	if u.PremiumExpiry != nil {
		expiry := *u.PremiumExpiry
		out.PremiumExpiry = &expiry
	}
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		out.ReferredBy = &ref
	}
	return &out
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *Store) CreateUser(ctx context.Context, id int64, referredBy *int64, now time.Time) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		return copyUser(u), false, nil
	}

	u := &models.User{
		ID:        id,
		Tier:      models.TierFree,
		LastReset: now,
		CreatedAt: now,
	}
	if referredBy != nil {
		ref := *referredBy
		u.ReferredBy = &ref
	}
	s.users[id] = u
	return copyUser(u), true, nil
}

func (s *Store) DemoteExpiredPremium(ctx context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.Tier != models.TierPremium || u.PremiumExpiry == nil || u.PremiumExpiry.After(now) {
		return false, nil
	}
	u.Tier = models.TierFree
	return true, nil
}

func (s *Store) ResetUsageIfElapsed(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || now.Sub(u.LastReset) < window {
		return false, nil
	}
	u.SearchesToday = 0
	u.LastReset = now
	return true, nil
}

func (s *Store) ReserveSearch(ctx context.Context, id int64, limit int) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.SearchesToday >= limit {
		return time.Time{}, false, nil
	}
	u.SearchesToday++
	return u.LastReset, true, nil
}

func (s *Store) ReleaseSearch(ctx context.Context, id int64, epoch time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok && u.LastReset.Equal(epoch) && u.SearchesToday > 0 {
		u.SearchesToday--
	}
	return nil
}

func (s *Store) RecordSearch(ctx context.Context, results int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalSearches++
	s.stats.TotalResults += int64(results)
	return nil
}

// extendPremium must be called with mu held.
func extendPremium(u *models.User, days int, now time.Time) time.Time {
	base := now
	if u.PremiumExpiry != nil && u.PremiumExpiry.After(now) {
		base = *u.PremiumExpiry
	}
	expiry := base.Add(time.Duration(days) * 24 * time.Hour)
	u.Tier = models.TierPremium
	u.PremiumExpiry = &expiry
	u.NotifiedExpiry = false
	return expiry
}

func (s *Store) AddReferral(ctx context.Context, referrerID int64, every, rewardDays int, now time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[referrerID]
	if !ok {
		return 0, false, database.ErrUserNotFound
	}
	u.ReferralCount++
	rewarded := u.ReferralCount%every == 0
	if rewarded {
		extendPremium(u, rewardDays, now)
	}
	return u.ReferralCount, rewarded, nil
}

func (s *Store) SetBanned(ctx context.Context, id int64, banned bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	u.IsBanned = banned
	return true, nil
}

func (s *Store) CreateKey(ctx context.Context, key string, days int, now time.Time) (*models.AccessKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return nil, database.ErrDuplicateKey
	}
	k := &models.AccessKey{KeyString: key, DurationDays: days, CreatedAt: now}
	s.keys[key] = k
	out := *k
	return &out, nil
}

func (s *Store) RedeemKey(ctx context.Context, key string, userID int64, now time.Time) (*models.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[key]
	if !ok || k.IsUsed {
		return nil, database.ErrKeyUnavailable
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, database.ErrUserNotFound
	}

	k.IsUsed = true
	k.UsedBy = &userID
	usedAt := now
	k.UsedAt = &usedAt

	expiry := extendPremium(u, k.DurationDays, now)
	return &models.Redemption{DurationDays: k.DurationDays, PremiumExpiry: expiry}, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

func (s *Store) ListExpiringPremium(ctx context.Context, now time.Time, window time.Duration) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := now.Add(window)
	out := []models.User{}
	for _, u := range s.users {
		if u.Tier != models.TierPremium || u.NotifiedExpiry || u.PremiumExpiry == nil {
			continue
		}
		if u.PremiumExpiry.After(now) && !u.PremiumExpiry.After(limit) {
			out = append(out, *copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PremiumExpiry.Before(*out[j].PremiumExpiry) })
	return out, nil
}

func (s *Store) MarkExpiryNotified(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return database.ErrUserNotFound
	}
	u.NotifiedExpiry = true
	return nil
}

func (s *Store) GetStats(ctx context.Context, now time.Time) (*models.StatsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &models.StatsSummary{Stats: s.stats}
	for _, u := range s.users {
		summary.TotalUsers++
		if u.PremiumActive(now) {
			summary.PremiumUsers++
		} else {
			summary.FreeUsers++
		}
	}
	return summary, nil
}
