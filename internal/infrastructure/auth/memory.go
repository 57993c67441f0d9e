package auth

import (
	"context"
	"sync"
	"time"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
)

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	claims   domain.TokenClaims
	deadline time.Time
}

var _ domain.TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]memoryEntry),
		now:    time.Now,
	}
}

// PutToken stores claims until ttl elapses. Lapsed entries are pruned on write.
func (s *MemoryTokenStore) PutToken(ctx context.Context, claims domain.TokenClaims, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, entry := range s.tokens {
		if !now.Before(entry.deadline) {
			delete(s.tokens, token)
		}
	}
	s.tokens[claims.Token] = memoryEntry{claims: claims, deadline: now.Add(ttl)}
	return nil
}

// GetToken returns the claims for token.
func (s *MemoryTokenStore) GetToken(ctx context.Context, token string) (domain.TokenClaims, error) {
	s.mu.RLock()
	entry, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.deadline) {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	return entry.claims, nil
}
