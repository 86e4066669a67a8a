package secrets

import (
	"context"
	"os"
	"regexp"
	"strings"
	"sync"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
)

var refPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// EnvSecretStore resolves secret references from environment variables. A ref
// like "stream-key.room42" maps to STUDIOCAST_SECRET_STREAM_KEY_ROOM42.
// Values never appear in logs or error messages.
type EnvSecretStore struct {
	prefix string
}

func NewEnvSecretStore() ports.SecretStore {
	return &EnvSecretStore{prefix: "STUDIOCAST_SECRET_"}
}

func (s *EnvSecretStore) GetSecret(ctx context.Context, key string) (string, error) {
	if !refPattern.MatchString(key) {
		return "", domain.ErrSecretNotFound
	}

	name := s.prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", domain.ErrSecretNotFound
	}
	return value, nil
}

// MemorySecretStore holds secrets in memory for tests.
type MemorySecretStore struct {
	secrets map[string]string
	mu      sync.RWMutex
}

func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]string)}
}

func (s *MemorySecretStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[key] = value
}

func (s *MemorySecretStore) GetSecret(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[key]
	if !ok {
		return "", domain.ErrSecretNotFound
	}
	return value, nil
}
