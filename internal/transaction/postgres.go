package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores transactions in PostgreSQL. The reference column
// is unique, which is what makes InsertOrGet idempotent across processes.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, account_id, kind, amount, status, stage, reference, details, created_at, updated_at`

// InsertOrGet inserts the record or returns the one already holding the reference.
func (r *PostgresRepository) InsertOrGet(ctx context.Context, t Transaction) (Transaction, bool, error) {
	accountID, err := uuid.Parse(t.AccountID)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("account id: %w", err)
	}
	id := uuid.New()
	if t.ID != "" {
		if id, err = uuid.Parse(t.ID); err != nil {
			return Transaction{}, false, fmt.Errorf("transaction id: %w", err)
		}
	}
	details, err := json.Marshal(mergeDetails(nil, t.Details))
	if err != nil {
		return Transaction{}, false, fmt.Errorf("encode details: %w", err)
	}

	row := r.db.QueryRow(ctx, `INSERT INTO transactions (id, account_id, kind, amount, status, stage, reference, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (reference) DO NOTHING
        RETURNING `+selectColumns,
		id, accountID, string(t.Kind), t.Amount, string(t.Status), string(t.Stage), t.Reference, details)
	stored, err := scanTransaction(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, err
	}
	existing, err := r.Get(ctx, t.Reference)
	if err != nil {
		return Transaction{}, false, err
	}
	return existing, false, nil
}

// Get fetches a record by reference.
func (r *PostgresRepository) Get(ctx context.Context, reference string) (Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE reference = $1`, reference)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return t, err
}

// Advance locks the row, checks the expected status and applies u.
func (r *PostgresRepository) Advance(ctx context.Context, reference string, from Status, u Update) (Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if err := checkAdvance(current, from); err != nil {
		return current, err
	}

	status, stage := current.Status, current.Stage
	if u.Status != "" {
		status = u.Status
	}
	if u.Stage != "" {
		stage = u.Stage
	}
	patch, err := json.Marshal(mergeDetails(nil, u.Details))
	if err != nil {
		return Transaction{}, fmt.Errorf("encode details: %w", err)
	}

	updated, err := scanTransaction(tx.QueryRow(ctx, `UPDATE transactions
        SET status = $1, stage = $2, details = details || $3::jsonb, updated_at = NOW()
        WHERE reference = $4
        RETURNING `+selectColumns, string(status), string(stage), patch, reference))
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

// List returns records matching f, newest first.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.AccountID != "" {
		id, err := uuid.Parse(f.AccountID)
		if err != nil {
			return []Transaction{}, nil
		}
		add("account_id = $%d", id)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To.UTC())
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC, reference LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t         Transaction
		id        uuid.UUID
		accountID uuid.UUID
		kind      string
		status    string
		stage     string
		details   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &accountID, &kind, &t.Amount, &status, &stage, &t.Reference, &details, &createdAt, &updatedAt); err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.AccountID = accountID.String()
	t.Kind = Kind(kind)
	t.Status = Status(status)
	t.Stage = Stage(stage)
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	t.Details = map[string]any{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return Transaction{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return t, nil
}
