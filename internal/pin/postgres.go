package pin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps PIN columns on the accounts row.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed credential store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount checks the accounts row exists; the wallet repository creates it.
func (s *PostgresStore) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := s.Get(ctx, accountID)
	return err
}

// Get loads the credential without locking.
func (s *PostgresStore) Get(ctx context.Context, accountID string) (Credential, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return Credential{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT pin_hash, pin_failed_attempts, pin_locked_until
        FROM accounts WHERE id = $1`, id)
	return scanCredential(row, accountID)
}

// Update locks the accounts row, applies fn and writes the PIN columns back.
func (s *PostgresStore) Update(ctx context.Context, accountID string, fn func(*Credential) error) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrAccountNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT pin_hash, pin_failed_attempts, pin_locked_until
        FROM accounts WHERE id = $1 FOR UPDATE`, id)
	cred, err := scanCredential(row, accountID)
	if err != nil {
		return err
	}

	if err := fn(&cred); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts
        SET pin_hash = $1, pin_failed_attempts = $2, pin_locked_until = $3, updated_at = NOW()
        WHERE id = $4`, cred.Hash, cred.FailedAttempts, cred.LockedUntil, id); err != nil {
		return fmt.Errorf("update pin credential: %w", err)
	}

	return tx.Commit(ctx)
}

func scanCredential(row pgx.Row, accountID string) (Credential, error) {
	var (
		cred        = Credential{AccountID: accountID}
		lockedUntil *time.Time
	)
	if err := row.Scan(&cred.Hash, &cred.FailedAttempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrAccountNotFound
		}
		return Credential{}, err
	}
	if lockedUntil != nil {
		t := lockedUntil.UTC()
		cred.LockedUntil = &t
	}
	return cred, nil
}
