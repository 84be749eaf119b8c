package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nexus-bot/internal/database"
	"nexus-bot/internal/database/storetest"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) database.Store { return openTemp(t) })
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, _, err = s.CreateUser(ctx, 5, nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.EnsureStats(ctx))
	require.NoError(t, s.RecordSearch(ctx, 3))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUser(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, u)

	summary, err := s.GetStats(ctx, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.TotalSearches)
	require.EqualValues(t, 3, summary.TotalResults)
}
