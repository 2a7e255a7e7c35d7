package social

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/soypete/pedropost/pkg/config"
	"github.com/soypete/pedropost/pkg/tokens"
)

func TestNewXHTTPClient_RefreshesAndPersists(t *testing.T) {
	var refreshes atomic.Int32

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "env-refresh", r.PostForm.Get("refresh_token"))
		refreshes.Add(1)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-access","refresh_token":"rotated-refresh","token_type":"bearer","expires_in":7200,"scope":"tweet.write offline.access"}`))
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh-access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":"p1"}}`))
	}))
	defer apiServer.Close()

	store := tokens.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	cfg := config.SocialConfig{
		ClientID:     "client",
		AccessToken:  "env-access",
		RefreshToken: "env-refresh",
		TokenURL:     tokenServer.URL,
	}

	httpClient, err := NewXHTTPClient(context.Background(), cfg, 5*time.Second, store, nil)
	require.NoError(t, err)

	x := NewXClient(XClientConfig{BaseURL: apiServer.URL, HTTPClient: httpClient})
	for i := 0; i < 2; i++ {
		id, err := x.CreatePost(context.Background(), "hi", nil)
		require.NoError(t, err)
		assert.Equal(t, "p1", id)
	}
	assert.Equal(t, int32(1), refreshes.Load())

	saved, err := store.GetToken(context.Background(), "x", "posting")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "rotated-refresh", saved.RefreshToken)
	require.NotNil(t, saved.ExpiresAt)
	assert.True(t, saved.ExpiresAt.After(time.Now()))
}

func TestNewXHTTPClient_StaticAccessToken(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer only-access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":"p1"}}`))
	}))
	defer apiServer.Close()

	store := tokens.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	httpClient, err := NewXHTTPClient(context.Background(), config.SocialConfig{AccessToken: "only-access"}, time.Second, store, nil)
	require.NoError(t, err)

	x := NewXClient(XClientConfig{BaseURL: apiServer.URL, HTTPClient: httpClient})
	_, err = x.CreatePost(context.Background(), "hi", nil)
	require.NoError(t, err)
}

func TestNewXHTTPClient_NoToken(t *testing.T) {
	store := tokens.NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := NewXHTTPClient(context.Background(), config.SocialConfig{}, time.Second, store, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tokens.ErrTokenNotFound))
}

func TestOAuth2Config_AuthStyle(t *testing.T) {
	public := OAuth2Config(config.SocialConfig{ClientID: "c"})
	assert.Equal(t, DefaultXTokenURL, public.Endpoint.TokenURL)
	assert.Contains(t, public.Scopes, "offline.access")

	confidential := OAuth2Config(config.SocialConfig{ClientID: "c", ClientSecret: "s", TokenURL: "http://tok"})
	assert.Equal(t, "http://tok", confidential.Endpoint.TokenURL)
	assert.NotEqual(t, public.Endpoint.AuthStyle, confidential.Endpoint.AuthStyle)
}

func TestStoreXToken(t *testing.T) {
	ctx := context.Background()
	store := tokens.NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := XToken(ctx, store)
	assert.ErrorIs(t, err, tokens.ErrTokenNotFound)

	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	first, err := StoreXToken(ctx, store, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: expiry})
	require.NoError(t, err)
	assert.Equal(t, "x", first.Provider)
	assert.Equal(t, "posting", first.Service)

	// Replacing keeps the record id but not the old refresh token
	second, err := StoreXToken(ctx, store, &oauth2.Token{AccessToken: "a2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	saved, err := XToken(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "a2", saved.AccessToken)
	assert.Empty(t, saved.RefreshToken)
	assert.Nil(t, saved.ExpiresAt)

	_, err = StoreXToken(ctx, store, &oauth2.Token{})
	assert.Error(t, err)
}
