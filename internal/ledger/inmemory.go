package ledger

import (
	"context"
	"strings"
	"sync"
)

type accountState struct {
	mu      sync.Mutex
	balance int64
	entries map[string]int64
}

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
}

// NewInMemory creates an in-memory ledger with one lock per account, so
// postings on different accounts never contend.
func NewInMemory() Ledger {
	return &inMemoryLedger{accounts: make(map[string]*accountState)}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[accountID]; !exists {
		l.accounts[accountID] = &accountState{entries: make(map[string]int64)}
	}
	return nil
}

func (l *inMemoryLedger) account(accountID string) (*accountState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, accountID string) (int64, error) {
	acc, err := l.account(accountID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

func (l *inMemoryLedger) Debit(_ context.Context, accountID, entryRef string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.post(accountID, entryRef, -amount)
}

func (l *inMemoryLedger) Credit(_ context.Context, accountID, entryRef string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.post(accountID, entryRef, amount)
}

func (l *inMemoryLedger) post(accountID, entryRef string, delta int64) (int64, error) {
	acc, err := l.account(accountID)
	if err != nil {
		return 0, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if entryRef != "" {
		if _, seen := acc.entries[entryRef]; seen {
			return acc.balance, ErrDuplicateEntry
		}
	}
	if acc.balance+delta < 0 {
		return acc.balance, ErrInsufficientFunds
	}

	acc.balance += delta
	if entryRef != "" {
		acc.entries[entryRef] = delta
	}
	return acc.balance, nil
}

// netEffect sums every posting whose entry reference belongs to reference.
func (l *inMemoryLedger) netEffect(accountID, reference string) int64 {
	acc, err := l.account(accountID)
	if err != nil {
		return 0
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	var total int64
	for ref, delta := range acc.entries {
		if strings.HasPrefix(ref, reference+":") {
			total += delta
		}
	}
	return total
}
