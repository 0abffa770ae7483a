package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when the account lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound indicates no balance exists for the account id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateEntry indicates the entry reference was already applied and
	// the call was treated as a no-op. The returned balance is the current one.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrInvalidAmount rejects zero or negative postings.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Ledger mutates account balances. It never writes transaction records; every
// posting is tagged with an entry reference so a replayed posting is detected
// instead of applied twice. All postings for one account are serialized and
// a balance can never go below zero.
type Ledger interface {
	EnsureAccount(ctx context.Context, accountID string) error
	Balance(ctx context.Context, accountID string) (int64, error)
	Debit(ctx context.Context, accountID, entryRef string, amount int64) (int64, error)
	Credit(ctx context.Context, accountID, entryRef string, amount int64) (int64, error)
}

// DebitRef and CreditRef derive the entry references postings use for a
// transaction reference.
func DebitRef(reference string) string { return reference + ":debit" }

func CreditRef(reference string) string { return reference + ":credit" }

// ReversalRef names the compensating credit of a debited reference.
func ReversalRef(reference string) string { return reference + ":reversal" }
