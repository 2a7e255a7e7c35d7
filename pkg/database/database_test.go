package database

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreGooseFiles(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		require.NoError(t, err)

		sql := string(content)
		assert.True(t, strings.HasSuffix(entry.Name(), ".sql"), entry.Name())
		assert.Contains(t, sql, "-- +goose Up", entry.Name())
		assert.Contains(t, sql, "-- +goose Down", entry.Name())
	}
}

func TestNew_EmptyURL(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func TestCycleRecord_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &CycleRecord{StartedAt: start, FinishedAt: start.Add(42 * time.Second)}
	assert.Equal(t, 42*time.Second, rec.Duration())
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "x", nullString("x").String)
}

// TestCycleStore_Postgres runs against a real database when
// PEDROPOST_TEST_DATABASE_URL is set.
func TestCycleStore_Postgres(t *testing.T) {
	url := os.Getenv("PEDROPOST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PEDROPOST_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate is idempotent")

	store := NewCycleStore(db.DB)
	now := time.Now().UTC().Truncate(time.Second)
	rec := &CycleRecord{
		IdeaTitle:   "Sunrise",
		IdeaIndex:   3,
		Status:      StatusFailed,
		FailedStage: "generate image",
		Error:       "boom",
		StartedAt:   now.Add(time.Hour * 24 * 365),
		FinishedAt:  now.Add(time.Hour*24*365 + time.Second),
	}
	require.NoError(t, store.Record(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
	assert.Equal(t, "generate image", recent[0].FailedStage)
	assert.Empty(t, recent[0].PostID)
}
