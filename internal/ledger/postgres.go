package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger keeps balances on the accounts row and an entry per posting.
// Each posting locks the account row for the span of its read-then-write.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount verifies the account row exists. Rows are created by the
// wallet repository when an account is opened.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, accountID string) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrAccountNotFound
	}
	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return nil
}

// Balance returns the stored balance for the account.
func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return 0, ErrAccountNotFound
	}
	var balance int64
	if err := l.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Debit decrements the balance, failing with ErrInsufficientFunds when it would go negative.
func (l *PostgresLedger) Debit(ctx context.Context, accountID, entryRef string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.post(ctx, accountID, entryRef, -amount)
}

// Credit increments the balance.
func (l *PostgresLedger) Credit(ctx context.Context, accountID, entryRef string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.post(ctx, accountID, entryRef, amount)
}

func (l *PostgresLedger) post(ctx context.Context, accountID, entryRef string, delta int64) (int64, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return 0, ErrAccountNotFound
	}
	if entryRef == "" {
		entryRef = uuid.NewString()
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("lock account %s: %w", accountID, err)
	}

	var seen bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM balance_entries WHERE entry_ref = $1)`, entryRef).Scan(&seen); err != nil {
		return 0, err
	}
	if seen {
		return balance, ErrDuplicateEntry
	}

	if balance+delta < 0 {
		return balance, ErrInsufficientFunds
	}

	var updated int64
	if err := tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = NOW()
        WHERE id = $2 RETURNING balance`, delta, id).Scan(&updated); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO balance_entries (id, account_id, entry_ref, amount, balance_after)
        VALUES ($1, $2, $3, $4, $5)`, uuid.New(), id, entryRef, delta, updated); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return updated, nil
}

// NetEffect sums the postings recorded for a transaction reference.
func (l *PostgresLedger) NetEffect(ctx context.Context, accountID, reference string) (int64, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return 0, ErrAccountNotFound
	}
	var total int64
	err = l.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM balance_entries
        WHERE account_id = $1 AND entry_ref = ANY($2)`,
		id, []string{DebitRef(reference), CreditRef(reference), ReversalRef(reference)}).Scan(&total)
	return total, err
}
