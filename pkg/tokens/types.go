package tokens

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned by a Store that has no token for the key.
var ErrTokenNotFound = errors.New("token not found")

// OAuthToken represents an OAuth token for a social provider
type OAuthToken struct {
	ID            string     `json:"id"`
	Provider      string     `json:"provider"`       // "x"
	Service       string     `json:"service"`        // "posting"
	AccessToken   string     `json:"access_token"`   // Short-lived bearer token
	RefreshToken  string     `json:"refresh_token"`  // Rotated by X on every refresh
	TokenType     string     `json:"token_type"`     // "bearer"
	Scope         string     `json:"scope"`          // Space-separated OAuth scopes
	ExpiresAt     *time.Time `json:"expires_at"`     // NULL when the provider did not say
	LastRefreshed *time.Time `json:"last_refreshed"` // When we last refreshed
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsExpired checks if the token is expired or will expire within the buffer duration
func (t *OAuthToken) IsExpired(buffer time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(buffer).After(*t.ExpiresAt)
}

// NeedsRefresh checks if token needs refreshing (expired and has refresh token)
func (t *OAuthToken) NeedsRefresh(buffer time.Duration) bool {
	return t.RefreshToken != "" && t.IsExpired(buffer)
}

// OAuth2 converts the stored token for use with golang.org/x/oauth2.
func (t *OAuthToken) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if t.ExpiresAt != nil {
		tok.Expiry = *t.ExpiresAt
	}
	return tok
}

// Update copies a freshly issued oauth2 token into t, keeping the old
// refresh token when the provider did not send a new one.
func (t *OAuthToken) Update(tok *oauth2.Token) {
	t.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		t.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		t.TokenType = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		t.Scope = scope
	}
	if tok.Expiry.IsZero() {
		t.ExpiresAt = nil
	} else {
		expiry := tok.Expiry
		t.ExpiresAt = &expiry
	}
	now := time.Now()
	t.LastRefreshed = &now
	t.UpdatedAt = now
}

// Store defines the interface for token storage operations
type Store interface {
	// GetToken retrieves a token by provider and service. It returns an
	// error wrapping ErrTokenNotFound when none is stored.
	GetToken(ctx context.Context, provider, service string) (*OAuthToken, error)

	// SaveToken saves or updates a token (upsert)
	SaveToken(ctx context.Context, token *OAuthToken) error
}
