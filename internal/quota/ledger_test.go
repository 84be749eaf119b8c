package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/database/memory"
	"nexus-bot/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var start = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*Ledger, *memory.Store, *clock.FakeClock) {
	store := memory.New()
	clk := clock.Fake(start)
	return NewLedger(store, clk, zaptest.NewLogger(t)), store, clk
}

func makePremium(t *testing.T, store *memory.Store, id int64, days int) {
	t.Helper()
	ctx := context.Background()
	_, _, err := store.CreateUser(ctx, id, nil, start)
	require.NoError(t, err)
	key := fmt.Sprintf("NEXUS-P%07d", id)
	_, err = store.CreateKey(ctx, key, days, start)
	require.NoError(t, err)
	_, err = store.RedeemKey(ctx, key, id, start)
	require.NoError(t, err)
}

func TestFreeTierDailyLimit(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	d, err := l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.TierFree, d.Tier)
	require.Equal(t, 1, d.Limit)
	require.Equal(t, 10, d.Depth)
	require.NoError(t, l.Commit(ctx, d, 3))

	_, err = l.CheckAndConsume(ctx, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 1, limitErr.Limit)
}

func TestConcurrentAttemptsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)
	makePremium(t, store, 7, 30)

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := l.CheckAndConsume(ctx, 7)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				rejected.Add(1)
			}
		})
	}
	wg.Wait()

	require.EqualValues(t, 5, admitted.Load())
	require.EqualValues(t, 15, rejected.Load())

	u, err := store.GetUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 5, u.SearchesToday)
}

func TestReleaseRefundsUnit(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	d, err := l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, d))
	// A settled decision is inert.
	require.NoError(t, l.Release(ctx, d))
	require.NoError(t, l.Commit(ctx, d, 10))

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)

	summary, err := store.GetStats(ctx, start)
	require.NoError(t, err)
	require.EqualValues(t, 0, summary.TotalSearches)

	_, err = l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
}

func TestCommitRecordsStats(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	d, err := l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, d, 0))

	summary, err := store.GetStats(ctx, start)
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.TotalSearches)
	require.EqualValues(t, 0, summary.TotalResults)
}

func TestEpochReset(t *testing.T) {
	ctx := context.Background()
	l, store, clk := newLedger(t)

	d, err := l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, d, 1))

	clk.Advance(23 * time.Hour)
	_, err = l.CheckAndConsume(ctx, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	clk.Advance(time.Hour)
	d, err = l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, d, 1))

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.LastReset.Equal(start.Add(24*time.Hour)))
	require.Equal(t, 1, u.SearchesToday)
}

func TestResetSurvivesRelease(t *testing.T) {
	ctx := context.Background()
	l, store, clk := newLedger(t)

	_, _, err := store.CreateUser(ctx, 1, nil, start)
	require.NoError(t, err)
	_, ok, err := store.ReserveSearch(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(25 * time.Hour)
	d, err := l.CheckAndConsume(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, d))

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)
	require.True(t, u.LastReset.Equal(start.Add(25*time.Hour)), "reset survives a released attempt")
}

func TestReservationStraddlingEpochBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("ReleaseAfterReset", func(t *testing.T) {
		l, store, clk := newLedger(t)

		late, err := l.CheckAndConsume(ctx, 1)
		require.NoError(t, err)

		clk.Advance(Window)
		fresh, err := l.CheckAndConsume(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, late))
		require.NoError(t, l.Commit(ctx, fresh, 4))

		u, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 1, u.SearchesToday)

		_, err = l.CheckAndConsume(ctx, 1)
		require.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("CommitAfterReset", func(t *testing.T) {
		l, store, clk := newLedger(t)

		late, err := l.CheckAndConsume(ctx, 1)
		require.NoError(t, err)

		clk.Advance(Window)
		fresh, err := l.CheckAndConsume(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, l.Commit(ctx, late, 2))
		require.NoError(t, l.Release(ctx, fresh))

		u, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 0, u.SearchesToday)

		summary, err := store.GetStats(ctx, clk.Now())
		require.NoError(t, err)
		require.EqualValues(t, 1, summary.TotalSearches)
		require.EqualValues(t, 2, summary.TotalResults)

		_, err = l.CheckAndConsume(ctx, 1)
		require.NoError(t, err)
	})
}

func TestExpiredPremiumDemotedBeforeLimit(t *testing.T) {
	ctx := context.Background()
	l, store, clk := newLedger(t)
	makePremium(t, store, 3, 1)

	clk.Advance(2 * 24 * time.Hour)
	d, err := l.CheckAndConsume(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, models.TierFree, d.Tier)
	require.Equal(t, 1, d.Limit)

	u, err := store.GetUser(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, models.TierFree, u.Tier)
}

func TestBannedUserRejected(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	_, _, err := store.CreateUser(ctx, 9, nil, start)
	require.NoError(t, err)
	_, err = store.SetBanned(ctx, 9, true)
	require.NoError(t, err)

	_, err = l.CheckAndConsume(ctx, 9)
	require.ErrorIs(t, err, ErrBanned)

	u, err := store.GetUser(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 0, u.SearchesToday)
}
