package pin

import (
	"context"
	"sync"
)

// Store persists credentials. Update runs fn while holding an exclusive lock
// on the account's credential and persists the result when fn returns nil, so
// two concurrent attempts are never evaluated against the same counter.
type Store interface {
	EnsureAccount(ctx context.Context, accountID string) error
	Get(ctx context.Context, accountID string) (Credential, error)
	Update(ctx context.Context, accountID string, fn func(*Credential) error) error
}

type memoryEntry struct {
	mu   sync.Mutex
	cred Credential
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryStore builds an in-memory credential store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *memoryStore) EnsureAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[accountID]; !ok {
		s.entries[accountID] = &memoryEntry{cred: Credential{AccountID: accountID}}
	}
	return nil
}

func (s *memoryStore) entry(accountID string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return e, nil
}

func (s *memoryStore) Get(_ context.Context, accountID string) (Credential, error) {
	e, err := s.entry(accountID)
	if err != nil {
		return Credential{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyCredential(e.cred), nil
}

func (s *memoryStore) Update(_ context.Context, accountID string, fn func(*Credential) error) error {
	e, err := s.entry(accountID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := copyCredential(e.cred)
	if err := fn(&working); err != nil {
		return err
	}
	e.cred = working
	return nil
}

func copyCredential(c Credential) Credential {
	out := c
	if c.Hash != nil {
		out.Hash = append([]byte(nil), c.Hash...)
	}
	if c.LockedUntil != nil {
		t := *c.LockedUntil
		out.LockedUntil = &t
	}
	return out
}
