package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/soypete/pedropost/pkg/config"
	"github.com/soypete/pedropost/pkg/tokens"
)

const (
	tokenProvider = "x"
	tokenService  = "posting"
)

// OAuth2Config returns the OAuth 2.0 client configuration for X.
func OAuth2Config(cfg config.SocialConfig) *oauth2.Config {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultXTokenURL
	}
	style := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		// Confidential clients authenticate with basic auth
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       XScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   DefaultXAuthURL,
			TokenURL:  tokenURL,
			AuthStyle: style,
		},
	}
}

// NewXHTTPClient builds an HTTP client that authenticates X API requests
// with the stored user token, refreshing and persisting it as needed.
func NewXHTTPClient(ctx context.Context, cfg config.SocialConfig, timeout time.Duration, store tokens.Store, logger *slog.Logger) (*http.Client, error) {
	seed := &tokens.OAuthToken{
		Provider:     tokenProvider,
		Service:      tokenService,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "bearer",
	}

	current, err := tokens.LoadOrSeed(ctx, store, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to load x token: %w", err)
	}

	initial := current.OAuth2()
	if current.ExpiresAt == nil && current.RefreshToken != "" {
		// Unknown expiry: refresh once so the real expiry gets recorded
		initial.Expiry = time.Now().Add(-time.Minute)
	}

	// Token refreshes use their own client with the same timeout
	refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	var base oauth2.TokenSource
	if current.RefreshToken != "" {
		base = OAuth2Config(cfg).TokenSource(refreshCtx, initial)
	} else {
		base = oauth2.StaticTokenSource(initial)
	}

	src := oauth2.ReuseTokenSource(initial, tokens.NewPersistingTokenSource(base, store, current, logger))

	client := oauth2.NewClient(refreshCtx, src)
	client.Timeout = timeout
	return client, nil
}

// StoreXToken saves tok as the X user token, replacing any stored one.
func StoreXToken(ctx context.Context, store tokens.Store, tok *oauth2.Token) (*tokens.OAuthToken, error) {
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("an access token or refresh token is required")
	}

	current, err := XToken(ctx, store)
	if err != nil {
		if !errors.Is(err, tokens.ErrTokenNotFound) {
			return nil, err
		}
		current = &tokens.OAuthToken{Provider: tokenProvider, Service: tokenService}
	}

	current.RefreshToken = ""
	current.TokenType = "bearer"
	current.Update(tok)

	if err := store.SaveToken(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save x token: %w", err)
	}
	return current, nil
}

// XToken returns the stored X user token.
func XToken(ctx context.Context, store tokens.Store) (*tokens.OAuthToken, error) {
	return store.GetToken(ctx, tokenProvider, tokenService)
}
