// Package storetest holds the behaviour every database.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexus-bot/internal/database"
	"nexus-bot/internal/models"

	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) database.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s database.Store)
	}{
		{"CreateUserIsIdempotent", testCreateUser},
		{"ResetUsageOncePerEpoch", testResetUsage},
		{"ReserveNeverExceedsLimit", testReserveConcurrent},
		{"ReleaseNeverGoesNegative", testRelease},
		{"ReleaseAfterResetIsDropped", testReleaseAfterReset},
		{"DemoteExpiredPremium", testDemote},
		{"ReferralRewardEveryFifth", testReferral},
		{"RedeemKeyExactlyOnce", testRedeem},
		{"RedeemKeyUnknownUser", testRedeemUnknownUser},
		{"DuplicateKey", testDuplicateKey},
		{"ExpiringPremiumWindow", testExpiring},
		{"BanToggle", testBan},
		{"StatsCounters", testStats},
		{"ListUserIDs", testListUserIDs},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s database.Store, id int64, now time.Time) *models.User {
	t.Helper()
	u, created, err := s.CreateUser(context.Background(), id, nil, now)
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func testCreateUser(t *testing.T, s database.Store) {
	ctx := context.Background()

	missing, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, missing)

	ref := int64(99)
	u, created, err := s.CreateUser(ctx, 1, &ref, base)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.TierFree, u.Tier)
	require.Equal(t, 0, u.SearchesToday)
	require.NotNil(t, u.ReferredBy)
	require.Equal(t, ref, *u.ReferredBy)

	again, created, err := s.CreateUser(ctx, 1, nil, base.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, again.LastReset.Equal(base))
	require.NotNil(t, again.ReferredBy)
}

func testResetUsage(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	_, ok, err := s.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	reset, err := s.ResetUsageIfElapsed(ctx, 1, base.Add(23*time.Hour), day)
	require.NoError(t, err)
	require.False(t, reset)

	boundary := base.Add(day)
	reset, err = s.ResetUsageIfElapsed(ctx, 1, boundary, day)
	require.NoError(t, err)
	require.True(t, reset)

	reset, err = s.ResetUsageIfElapsed(ctx, 1, boundary.Add(time.Minute), day)
	require.NoError(t, err)
	require.False(t, reset, "second check inside the same epoch must not move last_reset")

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)
	require.True(t, u.LastReset.Equal(boundary))
}

func testReserveConcurrent(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	const attempts = 20
	const limit = 5

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for range attempts {
		wg.Go(func() {
			_, ok, err := s.ReserveSearch(ctx, 1, limit)
			if err == nil && ok {
				admitted.Add(1)
			}
		})
	}
	wg.Wait()

	require.EqualValues(t, limit, admitted.Load())
	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, limit, u.SearchesToday)
}

func testRelease(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	epoch, ok, err := s.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, epoch.Equal(base))

	require.NoError(t, s.ReleaseSearch(ctx, 1, epoch))
	require.NoError(t, s.ReleaseSearch(ctx, 1, epoch))
	require.NoError(t, s.ReleaseSearch(ctx, 404, epoch))

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)

	_, ok, err = s.ReserveSearch(ctx, 2, 1)
	require.NoError(t, err)
	require.False(t, ok, "unknown users cannot reserve")
}

func testReleaseAfterReset(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	stale, ok, err := s.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	boundary := base.Add(day)
	reset, err := s.ResetUsageIfElapsed(ctx, 1, boundary, day)
	require.NoError(t, err)
	require.True(t, reset)

	current, ok, err := s.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, current.Equal(boundary))

	require.NoError(t, s.ReleaseSearch(ctx, 1, stale))

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, u.SearchesToday, "a refund from the previous epoch must not free the current unit")

	_, ok, err = s.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.ReleaseSearch(ctx, 1, current))
	u, err = s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)
}

func testDemote(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)
	mustCreate(t, s, 2, base)

	k, err := s.CreateKey(ctx, "NEXUS-DEMOTE01", 1, base)
	require.NoError(t, err)
	_, err = s.RedeemKey(ctx, k.KeyString, 1, base)
	require.NoError(t, err)

	demoted, err := s.DemoteExpiredPremium(ctx, 1, base.Add(12*time.Hour))
	require.NoError(t, err)
	require.False(t, demoted)

	demoted, err = s.DemoteExpiredPremium(ctx, 1, base.Add(day+time.Second))
	require.NoError(t, err)
	require.True(t, demoted)

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.TierFree, u.Tier)

	demoted, err = s.DemoteExpiredPremium(ctx, 2, base.Add(2*day))
	require.NoError(t, err)
	require.False(t, demoted, "free accounts are left alone")
}

func testReferral(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	for i := 1; i <= 10; i++ {
		count, rewarded, err := s.AddReferral(ctx, 1, 5, 7, base)
		require.NoError(t, err)
		require.Equal(t, i, count)
		require.Equal(t, i%5 == 0, rewarded, "referral %d", i)

		if i == 5 {
			u, err := s.GetUser(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, models.TierPremium, u.Tier)
			require.True(t, u.PremiumExpiry.Equal(base.Add(7*day)))
			require.NoError(t, s.MarkExpiryNotified(ctx, 1))
		}
	}

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.PremiumExpiry.Equal(base.Add(14*day)), "second reward stacks onto the first")
	require.False(t, u.NotifiedExpiry, "a reward clears the reminder flag")

	_, _, err = s.AddReferral(ctx, 404, 5, 7, base)
	require.ErrorIs(t, err, database.ErrUserNotFound)
}

func testRedeem(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	_, err := s.CreateKey(ctx, "NEXUS-AAAA1111", 30, base)
	require.NoError(t, err)
	_, err = s.CreateKey(ctx, "NEXUS-BBBB2222", 10, base)
	require.NoError(t, err)

	r, err := s.RedeemKey(ctx, "NEXUS-AAAA1111", 1, base)
	require.NoError(t, err)
	require.Equal(t, 30, r.DurationDays)
	require.True(t, r.PremiumExpiry.Equal(base.Add(30*day)))

	_, err = s.RedeemKey(ctx, "NEXUS-AAAA1111", 1, base)
	require.ErrorIs(t, err, database.ErrKeyUnavailable)

	later := base.Add(5 * day)
	r, err = s.RedeemKey(ctx, "NEXUS-BBBB2222", 1, later)
	require.NoError(t, err)
	require.True(t, r.PremiumExpiry.Equal(base.Add(40*day)), "extends from the existing expiry, not from now")

	_, err = s.RedeemKey(ctx, "NEXUS-MISSING0", 1, base)
	require.ErrorIs(t, err, database.ErrKeyUnavailable)
}

func testRedeemUnknownUser(t *testing.T, s database.Store) {
	ctx := context.Background()

	_, err := s.CreateKey(ctx, "NEXUS-CCCC3333", 3, base)
	require.NoError(t, err)

	_, err = s.RedeemKey(ctx, "NEXUS-CCCC3333", 7, base)
	require.ErrorIs(t, err, database.ErrUserNotFound)

	mustCreate(t, s, 7, base)
	r, err := s.RedeemKey(ctx, "NEXUS-CCCC3333", 7, base)
	require.NoError(t, err, "a failed redemption must not burn the key")
	require.Equal(t, 3, r.DurationDays)
}

func testDuplicateKey(t *testing.T, s database.Store) {
	ctx := context.Background()

	_, err := s.CreateKey(ctx, "NEXUS-DUPE0000", 1, base)
	require.NoError(t, err)
	_, err = s.CreateKey(ctx, "NEXUS-DUPE0000", 2, base)
	require.ErrorIs(t, err, database.ErrDuplicateKey)
}

func testExpiring(t *testing.T, s database.Store) {
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		mustCreate(t, s, id, base)
	}

	// 1 expires in 12h, 2 in 3 days, 3 stays free.
	_, err := s.CreateKey(ctx, "NEXUS-EXP00001", 1, base)
	require.NoError(t, err)
	_, err = s.RedeemKey(ctx, "NEXUS-EXP00001", 1, base.Add(-12*time.Hour))
	require.NoError(t, err)
	_, err = s.CreateKey(ctx, "NEXUS-EXP00002", 3, base)
	require.NoError(t, err)
	_, err = s.RedeemKey(ctx, "NEXUS-EXP00002", 2, base)
	require.NoError(t, err)

	users, err := s.ListExpiringPremium(ctx, base, day)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, int64(1), users[0].ID)

	require.NoError(t, s.MarkExpiryNotified(ctx, 1))
	users, err = s.ListExpiringPremium(ctx, base, day)
	require.NoError(t, err)
	require.Empty(t, users)

	require.ErrorIs(t, s.MarkExpiryNotified(ctx, 404), database.ErrUserNotFound)
}

func testBan(t *testing.T, s database.Store) {
	ctx := context.Background()
	mustCreate(t, s, 1, base)

	found, err := s.SetBanned(ctx, 1, true)
	require.NoError(t, err)
	require.True(t, found)

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.IsBanned)

	found, err = s.SetBanned(ctx, 1, false)
	require.NoError(t, err)
	require.True(t, found)

	found, err = s.SetBanned(ctx, 404, true)
	require.NoError(t, err)
	require.False(t, found)
}

func testStats(t *testing.T, s database.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureStats(ctx))
	require.NoError(t, s.EnsureStats(ctx))

	mustCreate(t, s, 1, base)
	mustCreate(t, s, 2, base)
	mustCreate(t, s, 3, base)
	_, err := s.CreateKey(ctx, "NEXUS-STAT0001", 1, base)
	require.NoError(t, err)
	_, err = s.RedeemKey(ctx, "NEXUS-STAT0001", 1, base)
	require.NoError(t, err)
	_, err = s.CreateKey(ctx, "NEXUS-STAT0002", 10, base)
	require.NoError(t, err)
	_, err = s.RedeemKey(ctx, "NEXUS-STAT0002", 2, base)
	require.NoError(t, err)

	require.NoError(t, s.RecordSearch(ctx, 12))
	require.NoError(t, s.RecordSearch(ctx, 0))

	summary, err := s.GetStats(ctx, base.Add(2*day))
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.TotalSearches)
	require.EqualValues(t, 12, summary.TotalResults)
	require.EqualValues(t, 3, summary.TotalUsers)
	require.EqualValues(t, 1, summary.PremiumUsers, "lapsed premium counts as free")
	require.EqualValues(t, 2, summary.FreeUsers)
}

func testListUserIDs(t *testing.T, s database.Store) {
	ctx := context.Background()

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	mustCreate(t, s, 30, base)
	mustCreate(t, s, 10, base.Add(time.Minute))
	mustCreate(t, s, 20, base.Add(time.Minute))

	ids, err = s.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{30, 10, 20}, ids)
}
