package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soypete/pedropost/pkg/fileio"
)

// FileStore keeps tokens in a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func storeKey(provider, service string) string {
	return provider + "/" + service
}

func (s *FileStore) load() (map[string]*OAuthToken, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*OAuthToken{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	all := map[string]*OAuthToken{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	return all, nil
}

// GetToken retrieves a token by provider and service
func (s *FileStore) GetToken(ctx context.Context, provider, service string) (*OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	token, ok := all[storeKey(provider, service)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, provider, service)
	}
	return token, nil
}

// SaveToken saves or updates a token (upsert)
func (s *FileStore) SaveToken(ctx context.Context, token *OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	all[storeKey(token.Provider, token.Service)] = token

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := fileio.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}
