package account

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// FileStore persists the record as a single sealed file. The payload is
// authenticated and encrypted with securecookie (HMAC + AES), so tokens are
// not readable at rest, and the record is namespaced by client id so
// unrelated callers cannot consume each other's tokens.
type FileStore struct {
	path     string
	clientID string
	codec    *securecookie.SecureCookie

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed Store. hashKey authenticates the
// record (32 or 64 bytes), blockKey encrypts it (16, 24 or 32 bytes).
func NewFileStore(path, clientID string, hashKey, blockKey []byte) (*FileStore, error) {
	if path == "" || clientID == "" {
		return nil, errors.New("file store needs a path and a client id")
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxLength(0)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &FileStore{
		path:     path,
		clientID: clientID,
		codec:    codec,
	}, nil
}

func (s *FileStore) name() string {
	return "authcore." + s.clientID
}

// load reads the sealed record. Missing, unreadable or tampered files all
// degrade to an empty record, never to an error for the caller.
func (s *FileStore) load() record {
	var rec record
	data, err := os.ReadFile(s.path)
	if err != nil {
		return rec
	}
	if err := s.codec.Decode(s.name(), string(data), &rec); err != nil {
		return record{}
	}
	return rec
}

func (s *FileStore) save(rec record) error {
	sealed, err := s.codec.Encode(s.name(), rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return os.WriteFile(s.path, []byte(sealed), 0o600)
}

func (s *FileStore) Upsert(ctx context.Context, account Account, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load()
	rec.merge(account, entries, time.Now())
	return s.save(rec)
}

func (s *FileStore) Lookup(ctx context.Context, accountID string, scopes []string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load()
	entry := rec.lookup(accountID, scopes, time.Now())
	if entry == nil {
		return nil, ErrNoEntry
	}
	return entry, nil
}

func (s *FileStore) RefreshTokenFor(ctx context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load()
	token := rec.refreshToken(accountID)
	if token == "" {
		return "", ErrNoEntry
	}
	return token, nil
}

func (s *FileStore) ActiveAccount(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load()
	if rec.Account == nil {
		return nil, nil
	}
	account := *rec.Account
	return &account, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
