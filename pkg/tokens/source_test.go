package tokens

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// sequenceSource hands out the queued tokens in order, repeating the last.
type sequenceSource struct {
	tokens []*oauth2.Token
	err    error
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.tokens) {
		i = len(s.tokens) - 1
	}
	s.calls++
	return s.tokens[i], nil
}

// countingStore records saves on top of a FileStore.
type countingStore struct {
	*FileStore
	saves   int
	saveErr error
}

func (s *countingStore) SaveToken(ctx context.Context, token *OAuthToken) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	return s.FileStore.SaveToken(ctx, token)
}

func TestPersistingTokenSource_SavesOnRotation(t *testing.T) {
	store := &countingStore{FileStore: NewFileStore(filepath.Join(t.TempDir(), "token.json"))}
	current := &OAuthToken{Provider: "x", Service: "posting", AccessToken: "a1", RefreshToken: "r1"}
	base := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "a1", RefreshToken: "r1"},
		{AccessToken: "a2", RefreshToken: "r2"},
		{AccessToken: "a2", RefreshToken: "r2"},
	}}

	src := NewPersistingTokenSource(base, store, current, nil)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, 0, store.saves)

	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, 1, store.saves)

	_, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	saved, err := store.GetToken(context.Background(), "x", "posting")
	require.NoError(t, err)
	assert.Equal(t, "a2", saved.AccessToken)
	assert.Equal(t, "r2", saved.RefreshToken)
}

func TestPersistingTokenSource_Errors(t *testing.T) {
	current := &OAuthToken{Provider: "x", Service: "posting", AccessToken: "a1"}

	base := &sequenceSource{err: errors.New("invalid_grant")}
	_, err := NewPersistingTokenSource(base, NewFileStore(filepath.Join(t.TempDir(), "t.json")), current, nil).Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")

	store := &countingStore{FileStore: NewFileStore(filepath.Join(t.TempDir(), "t.json")), saveErr: errors.New("disk full")}
	base = &sequenceSource{tokens: []*oauth2.Token{{AccessToken: "a2"}}}
	_, err = NewPersistingTokenSource(base, store, current, nil).Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist refreshed token")
}

func TestLoadOrSeed(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	seed := &OAuthToken{Provider: "x", Service: "posting", AccessToken: "env-a", RefreshToken: "env-r"}
	got, err := LoadOrSeed(ctx, store, seed)
	require.NoError(t, err)
	assert.Equal(t, "env-a", got.AccessToken)

	// Rotated token on disk wins over the original seed
	got.AccessToken = "rotated"
	require.NoError(t, store.SaveToken(ctx, got))

	again, err := LoadOrSeed(ctx, store, &OAuthToken{Provider: "x", Service: "posting", AccessToken: "env-a"})
	require.NoError(t, err)
	assert.Equal(t, "rotated", again.AccessToken)
}

func TestLoadOrSeed_NothingAvailable(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := LoadOrSeed(context.Background(), store, &OAuthToken{Provider: "x", Service: "posting"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenNotFound))
}
