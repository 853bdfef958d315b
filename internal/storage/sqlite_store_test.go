package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

func openTestSQLite(t *testing.T) *sqliteStore {
	t.Helper()
	store, err := openSQLite(filepath.Join(t.TempDir(), "nested", "quotes.sqlite"), normalizeOptions(Options{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreSavesQuoteWithOrderedLines(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	lines := []domain.QuoteLine{
		{Author: "MickBim", Color: "rgb(1, 2, 3)", Message: "salut", Order: 1},
		{Author: "MickBim", Message: "ca va", Order: 10},
		{Author: "barBe", Message: "re", Order: 2},
	}
	saved, err := store.SaveQuote(ctx, sampleQuote("https://q.example/quote/1", "first"), lines)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.ID)

	got, ok, err := store.QuoteByURL(ctx, "https://q.example/quote/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, got)

	stored, err := store.Lines(ctx, saved.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{stored[0].Order, stored[1].Order, stored[2].Order})
	assert.Equal(t, "rgb(1, 2, 3)", stored[0].Color)
	assert.Equal(t, saved.ID, stored[2].QuoteID)
	assert.NotZero(t, stored[1].ID)

	_, ok, err = store.QuoteByURL(ctx, "https://q.example/quote/2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	_, err := store.SaveQuote(ctx, sampleQuote("https://q.example/quote/1", "title"), nil)
	require.NoError(t, err)

	_, err = store.SaveQuote(ctx, sampleQuote("https://q.example/quote/1", "other"), nil)
	assert.ErrorIs(t, err, ErrDuplicateURL)

	_, err = store.SaveQuote(ctx, sampleQuote("https://q.example/quote/2", "title"), nil)
	assert.ErrorIs(t, err, ErrDuplicateTitle)

	has, err := store.HasURL(ctx, "https://q.example/quote/2")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = store.SaveQuote(ctx, sampleQuote("https://q.example/quote/3", ""), nil)
	require.NoError(t, err)
	_, err = store.SaveQuote(ctx, sampleQuote("https://q.example/quote/4", ""), nil)
	require.NoError(t, err)
}

func TestSQLiteStoreValidatesAndHonoursContext(t *testing.T) {
	store := openTestSQLite(t)

	_, err := store.SaveQuote(context.Background(), sampleQuote("", "t"), nil)
	assert.ErrorIs(t, err, ErrMissingURL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.SaveQuote(ctx, sampleQuote("https://q.example/quote/1", "t"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.HasURL(ctx, "https://q.example/quote/1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStoreMarksAndExpiresMisses(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)
	store.missTTL = time.Minute
	store.cleanupInterval = time.Hour

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.lastCleanup.Store(now.Unix())

	require.NoError(t, store.MarkMiss(ctx, "https://q.example/quote/404"))
	missed, err := store.RecentMiss(ctx, "https://q.example/quote/404")
	require.NoError(t, err)
	assert.True(t, missed)

	require.NoError(t, store.MarkMiss(ctx, "https://q.example/quote/404"), "re-marking refreshes the entry")

	now = now.Add(2 * time.Minute)
	missed, err = store.RecentMiss(ctx, "https://q.example/quote/404")
	require.NoError(t, err)
	assert.False(t, missed)

	assert.ErrorIs(t, store.MarkMiss(ctx, " "), ErrMissingURL)
}

func TestSQLiteStoreSaveClearsMissAndSweeps(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)
	store.missTTL = time.Second
	store.cleanupInterval = time.Minute

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.lastCleanup.Store(now.Unix())

	require.NoError(t, store.MarkMiss(ctx, "https://q.example/quote/1"))
	require.NoError(t, store.MarkMiss(ctx, "https://q.example/quote/2"))
	_, err := store.SaveQuote(ctx, sampleQuote("https://q.example/quote/1", "t"), nil)
	require.NoError(t, err)

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM misses`).Scan(&count))
	assert.Equal(t, 1, count)

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.maybeCleanupExpired(ctx, now))
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM misses`).Scan(&count))
	assert.Zero(t, count)
}

func TestNewStoreSQLite(t *testing.T) {
	_, err := NewStore("sqlite", "", Options{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "q.sqlite")
	store, err := NewStore("SQLite", path, Options{})
	require.NoError(t, err)
	_, err = store.SaveQuote(context.Background(), sampleQuote("https://q.example/1", "t"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore("sqlite", path, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	has, err := reopened.HasURL(context.Background(), "https://q.example/1")
	require.NoError(t, err)
	assert.True(t, has)
}
