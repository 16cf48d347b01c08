package balance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// PostgresStore persists balances in the users table and records every applied
// posting in balance_postings so replays are detected inside the same transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed balance store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a zero balance for a newly registered user.
func (s *PostgresStore) Create(ctx context.Context, account Account) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO users (id, total_points, used_points, rank, level, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        ON CONFLICT (id) DO NOTHING`,
		account.UserID, account.TotalPoints, account.UsedPoints, account.Rank, account.Level, account.Version, account.CreatedAt.UTC())
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

// Get reads the current balance of a user.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, total_points, used_points, rank, level, version, created_at, updated_at
        FROM users WHERE id = $1`, userID)
	var a Account
	if err := row.Scan(&a.UserID, &a.TotalPoints, &a.UsedPoints, &a.Rank, &a.Level, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.NotFound("user", userID)
		}
		return Account{}, apperr.Storage(err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Apply writes the posting and the new account state in one transaction. The
// UPDATE is guarded by the version read by the caller; a concurrent writer
// makes it affect zero rows and the whole transaction is rolled back.
func (s *PostgresStore) Apply(ctx context.Context, expectedVersion int64, next Account, posting Posting) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Storage(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO balance_postings (kind, ref, user_id, points, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (kind, ref) DO NOTHING`,
		posting.Kind, posting.Ref, posting.UserID, posting.Points, posting.At.UTC())
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyApplied
	}

	tag, err = tx.Exec(ctx, `UPDATE users
        SET total_points = $1, used_points = $2, rank = $3, level = $4, version = version + 1, updated_at = $5
        WHERE id = $6 AND version = $7`,
		next.TotalPoints, next.UsedPoints, next.Rank, next.Level, next.UpdatedAt.UTC(), next.UserID, expectedVersion)
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// HasPosting reports whether the posting reference was already applied.
func (s *PostgresStore) HasPosting(ctx context.Context, kind, ref string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM balance_postings WHERE kind = $1 AND ref = $2)`, kind, ref).Scan(&exists)
	if err != nil {
		return false, apperr.Storage(err)
	}
	return exists, nil
}

// Count returns the number of accounts.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, apperr.Storage(err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
