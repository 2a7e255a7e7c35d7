package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore keeps tokens in the oauth_tokens table created by the
// database migrations. The bot only ever holds one row, the X posting token,
// but rows are keyed by provider and service like every other Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already migrated database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectToken = `
	SELECT id, access_token, refresh_token, token_type, scope,
	       expires_at, last_refreshed, created_at, updated_at
	FROM oauth_tokens
	WHERE provider = $1 AND service = $2`

// The row id and created_at survive every refresh; X rotates the refresh
// token each time, so it is always overwritten.
const upsertToken = `
	INSERT INTO oauth_tokens (id, provider, service, access_token, refresh_token,
	                          token_type, scope, expires_at, last_refreshed)
	VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, ''), 'bearer'), $7, $8, $9)
	ON CONFLICT (provider, service) DO UPDATE SET
		access_token   = excluded.access_token,
		refresh_token  = excluded.refresh_token,
		token_type     = excluded.token_type,
		scope          = excluded.scope,
		expires_at     = excluded.expires_at,
		last_refreshed = excluded.last_refreshed,
		updated_at     = NOW()
	RETURNING id, token_type, created_at, updated_at`

// GetToken loads the token for provider and service.
func (s *PostgresStore) GetToken(ctx context.Context, provider, service string) (*OAuthToken, error) {
	var (
		tok           = OAuthToken{Provider: provider, Service: service}
		refreshToken  sql.Null[string]
		scope         sql.Null[string]
		expiresAt     sql.Null[time.Time]
		lastRefreshed sql.Null[time.Time]
	)

	err := s.db.QueryRowContext(ctx, selectToken, provider, service).Scan(
		&tok.ID, &tok.AccessToken, &refreshToken, &tok.TokenType, &scope,
		&expiresAt, &lastRefreshed, &tok.CreatedAt, &tok.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, provider, service)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s token: %w", provider, service, err)
	}

	tok.RefreshToken = refreshToken.V
	tok.Scope = scope.V
	tok.ExpiresAt = timePtr(expiresAt)
	tok.LastRefreshed = timePtr(lastRefreshed)
	return &tok, nil
}

// SaveToken upserts token and copies the stored id and timestamps back
// into it.
func (s *PostgresStore) SaveToken(ctx context.Context, token *OAuthToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}

	err := s.db.QueryRowContext(ctx, upsertToken,
		token.ID,
		token.Provider,
		token.Service,
		token.AccessToken,
		optional(token.RefreshToken),
		token.TokenType,
		optional(token.Scope),
		nullTime(token.ExpiresAt),
		nullTime(token.LastRefreshed),
	).Scan(&token.ID, &token.TokenType, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save %s/%s token: %w", token.Provider, token.Service, err)
	}
	return nil
}

func optional(s string) sql.Null[string] {
	return sql.Null[string]{V: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.Null[time.Time] {
	if t == nil {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: *t, Valid: true}
}

func timePtr(n sql.Null[time.Time]) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.V
	return &t
}
