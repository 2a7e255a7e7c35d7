package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// LoadOrSeed returns the stored token for provider/service. When nothing is
// stored yet, seed is saved and returned instead, so tokens supplied through
// the environment survive their first rotation.
func LoadOrSeed(ctx context.Context, store Store, seed *OAuthToken) (*OAuthToken, error) {
	stored, err := store.GetToken(ctx, seed.Provider, seed.Service)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if seed.AccessToken == "" && seed.RefreshToken == "" {
		return nil, fmt.Errorf("no %s token stored and none configured: %w", seed.Provider, ErrTokenNotFound)
	}
	if err := store.SaveToken(ctx, seed); err != nil {
		return nil, fmt.Errorf("failed to save initial token: %w", err)
	}
	return seed, nil
}

// PersistingTokenSource wraps an oauth2.TokenSource and saves every newly
// issued token to a Store.
type PersistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	store   Store
	current *OAuthToken
	logger  *slog.Logger
}

// NewPersistingTokenSource wraps base. current is the token base was seeded
// with and is updated in place as tokens rotate.
func NewPersistingTokenSource(base oauth2.TokenSource, store Store, current *OAuthToken, logger *slog.Logger) *PersistingTokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistingTokenSource{
		base:    base,
		store:   store,
		current: current,
		logger:  logger,
	}
}

// Token implements oauth2.TokenSource.
func (s *PersistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	if tok.AccessToken == s.current.AccessToken {
		return tok, nil
	}

	s.current.Update(tok)
	// The old refresh token is already spent, so losing this save would
	// strand the bot after a restart.
	if err := s.store.SaveToken(context.Background(), s.current); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	s.logger.Info("refreshed social access token", "provider", s.current.Provider)

	return tok, nil
}
