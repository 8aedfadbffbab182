package account

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process Store, used in tests and as the fallback when
// no persistence was configured. Safe for concurrent use.
type MemStore struct {
	mu  sync.RWMutex
	rec record
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Upsert(ctx context.Context, account Account, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.merge(account, entries, time.Now())
	return nil
}

func (s *MemStore) Lookup(ctx context.Context, accountID string, scopes []string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.rec.lookup(accountID, scopes, time.Now())
	if entry == nil {
		return nil, ErrNoEntry
	}
	return entry, nil
}

func (s *MemStore) RefreshTokenFor(ctx context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token := s.rec.refreshToken(accountID)
	if token == "" {
		return "", ErrNoEntry
	}
	return token, nil
}

func (s *MemStore) ActiveAccount(ctx context.Context) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec.Account == nil {
		return nil, nil
	}
	account := *s.rec.Account
	return &account, nil
}

func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = record{}
	return nil
}
