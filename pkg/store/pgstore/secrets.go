package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

const entryColumns = `id, issuer, account_name, secret, algorithm, digits, kind, counter, period, created_at, updated_at`

const upsertEntry = `
INSERT INTO otp_entries (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    issuer = EXCLUDED.issuer,
    account_name = EXCLUDED.account_name,
    secret = EXCLUDED.secret,
    algorithm = EXCLUDED.algorithm,
    digits = EXCLUDED.digits,
    kind = EXCLUDED.kind,
    counter = EXCLUDED.counter,
    period = EXCLUDED.period,
    updated_at = EXCLUDED.updated_at`

// Secrets is a vault.SecretStore on PostgreSQL.
type Secrets struct {
	pool *pgxpool.Pool
}

// NewSecrets returns a SecretStore over the otp_entries table.
func NewSecrets(pool *pgxpool.Pool) *Secrets {
	return &Secrets{pool: pool}
}

// GetAll returns every entry ordered by creation time.
func (s *Secrets) GetAll(ctx context.Context) ([]vault.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM otp_entries ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEntry)
}

// Get returns one entry or vault.ErrEntryNotFound.
func (s *Secrets) Get(ctx context.Context, id uuid.UUID) (vault.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM otp_entries WHERE id = $1`, id)
	if err != nil {
		return vault.Entry{}, err
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	return e, err
}

// Put inserts or replaces an entry.
func (s *Secrets) Put(ctx context.Context, e vault.Entry) error {
	_, err := s.pool.Exec(ctx, upsertEntry, entryArgs(e)...)
	return err
}

// Delete removes an entry or returns vault.ErrEntryNotFound.
func (s *Secrets) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return vault.ErrEntryNotFound
	}
	return nil
}

// UpdateAll writes every entry in a single transaction.
func (s *Secrets) UpdateAll(ctx context.Context, entries []vault.Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(upsertEntry, entryArgs(e)...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func entryArgs(e vault.Entry) []any {
	d := e.Descriptor
	return []any{
		e.ID,
		d.Issuer,
		d.AccountName,
		d.Secret,
		string(d.Algorithm),
		int16(d.Digits),
		string(d.Kind),
		int64(d.Counter),
		int32(d.Period),
		e.CreatedAt,
		e.UpdatedAt,
	}
}

func scanEntry(row pgx.CollectableRow) (vault.Entry, error) {
	var (
		e         vault.Entry
		algorithm string
		kind      string
		digits    int16
		counter   int64
		period    int32
	)
	err := row.Scan(
		&e.ID,
		&e.Descriptor.Issuer,
		&e.Descriptor.AccountName,
		&e.Descriptor.Secret,
		&algorithm,
		&digits,
		&kind,
		&counter,
		&period,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return vault.Entry{}, err
	}
	e.Descriptor.Algorithm = otp.Algorithm(algorithm)
	e.Descriptor.Kind = otp.Kind(kind)
	e.Descriptor.Digits = int(digits)
	e.Descriptor.Counter = uint64(counter)
	e.Descriptor.Period = uint(period)
	return e, nil
}
