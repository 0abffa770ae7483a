package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/billpay/internal/provider"
)

// Repository persists account metadata. Accounts are never deleted.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	SetStatus(ctx context.Context, id, status string) error
	AttachVirtualAccount(ctx context.Context, id string, va provider.VirtualAccount) (provider.VirtualAccount, error)
}

// PostgresRepository stores accounts in PostgreSQL. It owns row creation for
// the accounts table the ledger and PIN store operate on.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account row with a zero balance and no PIN.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)`, id, account.OwnerID, account.Status, account.CreatedAt.UTC())
	return err
}

// Get fetches account metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, status, va_reference, va_account_number, va_account_name, va_bank_name, created_at
        FROM accounts WHERE id = $1`, accountID)

	var (
		a         Account
		idVal     uuid.UUID
		vaRef     sql.NullString
		vaNumber  sql.NullString
		vaName    sql.NullString
		vaBank    sql.NullString
		createdAt time.Time
	)
	if err := row.Scan(&idVal, &a.OwnerID, &a.Status, &vaRef, &vaNumber, &vaName, &vaBank, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = idVal.String()
	a.CreatedAt = createdAt.UTC()
	if vaRef.Valid {
		a.VirtualAccount = &provider.VirtualAccount{
			Reference:     vaRef.String,
			AccountNumber: vaNumber.String,
			AccountName:   vaName.String,
			BankName:      vaBank.String,
		}
	}
	return a, nil
}

// SetStatus updates the lifecycle status.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`, status, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachVirtualAccount stores va when the account has none. A repeat with the
// same reference returns the stored account.
func (r *PostgresRepository) AttachVirtualAccount(ctx context.Context, id string, va provider.VirtualAccount) (provider.VirtualAccount, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return provider.VirtualAccount{}, ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return provider.VirtualAccount{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var existing sql.NullString
	if err := tx.QueryRow(ctx, `SELECT va_reference FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&existing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return provider.VirtualAccount{}, ErrNotFound
		}
		return provider.VirtualAccount{}, err
	}
	if existing.Valid {
		if err := tx.Commit(ctx); err != nil {
			return provider.VirtualAccount{}, err
		}
		stored, err := r.Get(ctx, id)
		if err != nil {
			return provider.VirtualAccount{}, err
		}
		if existing.String != va.Reference {
			return *stored.VirtualAccount, ErrVirtualAccountExists
		}
		return *stored.VirtualAccount, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET va_reference = $1, va_account_number = $2, va_account_name = $3,
        va_bank_name = $4, updated_at = NOW() WHERE id = $5`,
		va.Reference, va.AccountNumber, va.AccountName, va.BankName, accountID); err != nil {
		return provider.VirtualAccount{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return provider.VirtualAccount{}, err
	}
	return va, nil
}
