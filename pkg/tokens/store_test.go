package tokens_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soypete/pedropost/pkg/database"
	"github.com/soypete/pedropost/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresStore runs against a real database when
// PEDROPOST_TEST_DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PEDROPOST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PEDROPOST_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	store := tokens.NewPostgresStore(db.DB)
	service := "test-" + time.Now().Format("150405.000000")
	defer db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider = 'x' AND service = $1`, service)

	_, err = store.GetToken(ctx, "x", service)
	assert.ErrorIs(t, err, tokens.ErrTokenNotFound)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	tok := &tokens.OAuthToken{
		Provider:    "x",
		Service:     service,
		AccessToken: "access-1",
		ExpiresAt:   &expires,
	}
	require.NoError(t, store.SaveToken(ctx, tok))
	assert.NotEmpty(t, tok.ID)
	assert.Equal(t, "bearer", tok.TokenType)
	firstID, created := tok.ID, tok.CreatedAt

	got, err := store.GetToken(ctx, "x", service)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(got.ExpiresAt.UTC()))

	rotated := &tokens.OAuthToken{
		ID:           uuid.New().String(),
		Provider:     "x",
		Service:      service,
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
	}
	require.NoError(t, store.SaveToken(ctx, rotated))
	assert.Equal(t, firstID, rotated.ID)
	assert.True(t, created.Equal(rotated.CreatedAt))

	got, err = store.GetToken(ctx, "x", service)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken)
	assert.Nil(t, got.ExpiresAt)
}
