package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nexus-bot/internal/clock"
	"nexus-bot/internal/database"
	"nexus-bot/internal/database/memory"
	"nexus-bot/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu     sync.Mutex
	sent   []int64
	failOn map[int64]bool
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[chatID] {
		return errors.New("forbidden")
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func (s *recordingSender) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.sent...)
}

// premium gives id a premium period ending at expires.
func premium(t *testing.T, store database.Store, id int64, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	_, _, err := store.CreateUser(ctx, id, nil, now)
	require.NoError(t, err)
	key := fmt.Sprintf("NEXUS-E%07d", id)
	_, err = store.CreateKey(ctx, key, 1, now)
	require.NoError(t, err)
	_, err = store.RedeemKey(ctx, key, id, expires.Add(-24*time.Hour))
	require.NoError(t, err)
}

func seed(t *testing.T, store database.Store) {
	premium(t, store, 1, now.Add(2*time.Hour))
	premium(t, store, 2, now.Add(20*time.Hour))
	premium(t, store, 3, now.Add(48*time.Hour))
	_, _, err := store.CreateUser(context.Background(), 4, nil, now)
	require.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	store := memory.New()
	seed(t, store)
	clk := clock.Fake(now)
	s := &recordingSender{}
	n := New(store, s, clk, Config{}, zaptest.NewLogger(t))

	sent, err := n.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.ElementsMatch(t, []int64{1, 2}, s.ids())
	require.Equal(t, []time.Duration{time.Second, time.Second}, clk.Sleeps())

	// Already reminded accounts are skipped.
	sent, err = n.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, sent)

	u, err := store.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, u.NotifiedExpiry)
}

func TestFailedSendIsRetriedNextPass(t *testing.T) {
	store := memory.New()
	seed(t, store)
	s := &recordingSender{failOn: map[int64]bool{2: true}}
	n := New(store, s, clock.Fake(now), Config{}, zaptest.NewLogger(t))

	sent, err := n.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	s.mu.Lock()
	s.failOn = nil
	s.mu.Unlock()

	sent, err = n.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, []int64{1, 2}, s.ids())
}

type unmarkableStore struct {
	database.Store
}

func (unmarkableStore) MarkExpiryNotified(context.Context, int64) error {
	return errors.New("write failed")
}

// Delivery is at-least-once: if marking fails after a successful send the
// reminder goes out again on the next pass.
func TestReminderRepeatsWhenMarkFails(t *testing.T) {
	mem := memory.New()
	premium(t, mem, 1, now.Add(time.Hour))
	s := &recordingSender{}
	n := New(unmarkableStore{mem}, s, clock.Fake(now), Config{}, zaptest.NewLogger(t))

	for range 2 {
		_, err := n.RunOnce(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, []int64{1, 1}, s.ids())
}

type failingListStore struct {
	database.Store
	mu    sync.Mutex
	calls int
}

func (f *failingListStore) ListExpiringPremium(context.Context, time.Time, time.Duration) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, errors.New("store offline")
}

func TestRunRearmsAfterFailure(t *testing.T) {
	store := &failingListStore{Store: memory.New()}
	clk := clock.Fake(now)
	ctx, cancel := context.WithCancel(context.Background())
	clk.AfterSleep(func(time.Duration) {
		if len(clk.Sleeps()) == 3 {
			cancel()
		}
	})

	n := New(store, &recordingSender{}, clk, Config{Interval: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, n.Run(ctx))

	require.Equal(t, 3, store.calls)
	require.Equal(t, []time.Duration{time.Hour, time.Hour, time.Hour}, clk.Sleeps())
}
