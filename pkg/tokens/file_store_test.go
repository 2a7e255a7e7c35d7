package tokens

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens", "token.json")
	store := NewFileStore(path)

	_, err := store.GetToken(ctx, "x", "posting")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenNotFound))

	token := &OAuthToken{Provider: "x", Service: "posting", AccessToken: "a", RefreshToken: "r", TokenType: "bearer"}
	require.NoError(t, store.SaveToken(ctx, token))
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())

	got, err := store.GetToken(ctx, "x", "posting")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.Equal(t, token.ID, got.ID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	require.NoError(t, store.SaveToken(ctx, &OAuthToken{Provider: "x", Service: "posting", AccessToken: "a1"}))
	require.NoError(t, store.SaveToken(ctx, &OAuthToken{Provider: "x", Service: "other", AccessToken: "b1"}))
	require.NoError(t, store.SaveToken(ctx, &OAuthToken{Provider: "x", Service: "posting", AccessToken: "a2"}))

	got, err := store.GetToken(ctx, "x", "posting")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)

	other, err := store.GetToken(ctx, "x", "other")
	require.NoError(t, err)
	assert.Equal(t, "b1", other.AccessToken)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := NewFileStore(path).GetToken(context.Background(), "x", "posting")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTokenNotFound))
	assert.Contains(t, err.Error(), "failed to parse token file")
}
