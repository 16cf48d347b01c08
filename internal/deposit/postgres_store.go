package deposit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

// PostgresStore persists deposits in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a deposit store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const depositColumns = `id, request_id, user_id, bin_id, category, weight_kg, points, created_at`

// Append inserts the deposit and its progress row in one transaction. A
// conflicting request id returns the stored record with ErrDuplicateRequest.
func (s *PostgresStore) Append(ctx context.Context, rec Record) (Record, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, apperr.Storage(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO deposits (`+depositColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (request_id) DO NOTHING`,
		rec.ID, rec.RequestID, rec.UserID, rec.BinID, string(rec.Category), rec.WeightKg, rec.Points, rec.CreatedAt.UTC())
	if err != nil {
		return Record{}, apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := scanRecord(tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE request_id = $1`, rec.RequestID))
		if err != nil {
			return Record{}, apperr.Storage(err)
		}
		return existing, ErrDuplicateRequest
	}

	if _, err := tx.Exec(ctx, `INSERT INTO deposit_progress (deposit_id, balance_applied, bin_applied, attempts, last_error, updated_at)
        VALUES ($1, false, false, 0, '', $2)`, rec.ID, rec.CreatedAt.UTC()); err != nil {
		return Record{}, apperr.Storage(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, apperr.Storage(err)
	}
	return rec, nil
}

// Get fetches a deposit by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("deposit", id)
	}
	return rec, apperr.Storage(err)
}

// GetByRequest fetches a deposit by its request id.
func (s *PostgresStore) GetByRequest(ctx context.Context, requestID string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE request_id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("deposit request", requestID)
	}
	return rec, apperr.Storage(err)
}

// Progress returns the saga journal of a deposit.
func (s *PostgresStore) Progress(ctx context.Context, depositID string) (Progress, error) {
	var p Progress
	err := s.db.QueryRow(ctx, `SELECT deposit_id, balance_applied, bin_applied, attempts, last_error, updated_at
        FROM deposit_progress WHERE deposit_id = $1`, depositID).
		Scan(&p.DepositID, &p.BalanceApplied, &p.BinApplied, &p.Attempts, &p.LastError, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Progress{}, apperr.NotFound("deposit", depositID)
	}
	if err != nil {
		return Progress{}, apperr.Storage(err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// SaveProgress overwrites the saga journal. Applied flags never flip back.
func (s *PostgresStore) SaveProgress(ctx context.Context, p Progress) error {
	tag, err := s.db.Exec(ctx, `UPDATE deposit_progress
        SET balance_applied = balance_applied OR $2,
            bin_applied = bin_applied OR $3,
            attempts = $4, last_error = $5, updated_at = $6
        WHERE deposit_id = $1`,
		p.DepositID, p.BalanceApplied, p.BinApplied, p.Attempts, p.LastError, p.UpdatedAt.UTC())
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("deposit", p.DepositID)
	}
	return nil
}

// Pending lists deposits whose saga has not completed, oldest first.
func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT d.id, d.request_id, d.user_id, d.bin_id, d.category, d.weight_kg, d.points, d.created_at
        FROM deposits d JOIN deposit_progress p ON p.deposit_id = d.id
        WHERE NOT (p.balance_applied AND p.bin_applied)
        ORDER BY d.created_at, d.id LIMIT $1`, limit)
}

// ListByUser lists a user's deposits, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT `+depositColumns+` FROM deposits
        WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
}

// List pages through all deposits newest first.
func (s *PostgresStore) List(ctx context.Context, cursor string, limit int) (Page, error) {
	var (
		records []Record
		err     error
	)
	if cursor == "" {
		records, err = s.query(ctx, `SELECT `+depositColumns+` FROM deposits
            ORDER BY created_at DESC, id DESC LIMIT $1`, limit+1)
	} else {
		after, getErr := s.Get(ctx, cursor)
		if getErr != nil {
			if errors.Is(getErr, apperr.ErrNotFound) {
				return Page{}, apperr.Invalid("unknown cursor %q", cursor)
			}
			return Page{}, getErr
		}
		records, err = s.query(ctx, `SELECT `+depositColumns+` FROM deposits
            WHERE (created_at, id) < ($1, $2)
            ORDER BY created_at DESC, id DESC LIMIT $3`, after.CreatedAt, after.ID, limit+1)
	}
	if err != nil {
		return Page{}, err
	}
	page := Page{Deposits: records}
	if len(records) > limit {
		page.Deposits = records[:limit]
		page.NextCursor = records[limit-1].ID
	}
	return page, nil
}

// Totals aggregates deposits per category.
func (s *PostgresStore) Totals(ctx context.Context, userID string, since time.Time) (Totals, error) {
	rows, err := s.db.Query(ctx, `SELECT category, COUNT(*), COUNT(*) FILTER (WHERE created_at >= $2),
            COALESCE(SUM(points), 0), COALESCE(SUM(weight_kg), 0)
        FROM deposits WHERE ($1 = '' OR user_id = $1) GROUP BY category`, userID, since.UTC())
	if err != nil {
		return Totals{}, apperr.Storage(err)
	}
	defer rows.Close()

	t := Totals{KgByCategory: make(map[policy.Category]float64)}
	for rows.Next() {
		var (
			category      string
			count, recent int64
			points        int64
			kg            float64
		)
		if err := rows.Scan(&category, &count, &recent, &points, &kg); err != nil {
			return Totals{}, apperr.Storage(err)
		}
		t.Count += count
		t.Recent += recent
		t.Points += points
		t.KgByCategory[policy.Category(category)] = kg
	}
	return t, apperr.Storage(rows.Err())
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, rec)
	}
	return out, apperr.Storage(rows.Err())
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		category string
	)
	if err := row.Scan(&rec.ID, &rec.RequestID, &rec.UserID, &rec.BinID, &category,
		&rec.WeightKg, &rec.Points, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.Category = policy.Category(category)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
