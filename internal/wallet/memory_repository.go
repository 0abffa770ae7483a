package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/congo-pay/billpay/internal/provider"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[account.ID]; exists {
		return errors.New("account exists")
	}
	r.storage[account.ID] = account
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.storage[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	if account.VirtualAccount != nil {
		va := *account.VirtualAccount
		account.VirtualAccount = &va
	}
	return account, nil
}

func (r *memoryRepository) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	account.Status = status
	r.storage[id] = account
	return nil
}

func (r *memoryRepository) AttachVirtualAccount(_ context.Context, id string, va provider.VirtualAccount) (provider.VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.storage[id]
	if !ok {
		return provider.VirtualAccount{}, ErrNotFound
	}
	if existing := account.VirtualAccount; existing != nil {
		if existing.Reference != va.Reference {
			return *existing, ErrVirtualAccountExists
		}
		return *existing, nil
	}
	account.VirtualAccount = &va
	r.storage[id] = account
	return va, nil
}
