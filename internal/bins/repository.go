package bins

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

var (
	// ErrVersionConflict is returned when the bin changed since it was read.
	ErrVersionConflict = errors.New("bin version conflict")
	// ErrAlreadyApplied indicates the deposit was already applied to the bin.
	ErrAlreadyApplied = errors.New("top-up already applied")
	// ErrBinExists is returned when provisioning an identifier already in use.
	ErrBinExists = errors.New("bin already exists")
)

// Repository persists bin state.
//
// Apply replaces the bin with next if the stored version equals
// expectedVersion. A non-empty ref is recorded alongside the write and a
// second Apply with the same ref fails with ErrAlreadyApplied.
type Repository interface {
	Create(ctx context.Context, bin Bin) error
	Get(ctx context.Context, id string) (Bin, error)
	List(ctx context.Context, status policy.BinStatus) ([]Bin, error)
	Apply(ctx context.Context, expectedVersion int64, next Bin, ref string, weightKg float64) error
	HasTopUp(ctx context.Context, ref string) (bool, error)
}

// PostgresRepository stores bins in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const binColumns = `id, location, latitude, longitude, fill_level, status, last_emptied, version, created_at`

// Create inserts a provisioned bin.
func (r *PostgresRepository) Create(ctx context.Context, bin Bin) error {
	_, err := r.db.Exec(ctx, `INSERT INTO bins (`+binColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		bin.ID, bin.Location, bin.Latitude, bin.Longitude, bin.FillLevel, string(bin.Status),
		bin.LastEmptied.UTC(), bin.Version, bin.CreatedAt.UTC())
	if apperr.IsUniqueViolation(err, "bins_pkey") {
		return ErrBinExists
	}
	return apperr.Storage(err)
}

// Get fetches a bin by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Bin, error) {
	row := r.db.QueryRow(ctx, `SELECT `+binColumns+` FROM bins WHERE id = $1`, id)
	b, err := scanBin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bin{}, apperr.NotFound("bin", id)
		}
		return Bin{}, apperr.Storage(err)
	}
	return b, nil
}

// List returns all bins, optionally restricted to one status, ordered by location.
func (r *PostgresRepository) List(ctx context.Context, status policy.BinStatus) ([]Bin, error) {
	rows, err := r.db.Query(ctx, `SELECT `+binColumns+` FROM bins
        WHERE ($1 = '' OR status = $1) ORDER BY location, id`, string(status))
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()

	var out []Bin
	for rows.Next() {
		b, err := scanBin(rows)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// Apply writes the new bin state, and the top-up marker when ref is set, in one transaction.
func (r *PostgresRepository) Apply(ctx context.Context, expectedVersion int64, next Bin, ref string, weightKg float64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Storage(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if ref != "" {
		tag, err := tx.Exec(ctx, `INSERT INTO bin_postings (ref, bin_id, weight_kg, created_at)
            VALUES ($1, $2, $3, $4) ON CONFLICT (ref) DO NOTHING`, ref, next.ID, weightKg, time.Now().UTC())
		if err != nil {
			return apperr.Storage(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyApplied
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE bins
        SET fill_level = $1, status = $2, last_emptied = $3, location = $4, latitude = $5, longitude = $6,
            version = version + 1
        WHERE id = $7 AND version = $8`,
		next.FillLevel, string(next.Status), next.LastEmptied.UTC(), next.Location, next.Latitude, next.Longitude,
		next.ID, expectedVersion)
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	return apperr.Storage(tx.Commit(ctx))
}

// HasTopUp reports whether the deposit ref was already applied.
func (r *PostgresRepository) HasTopUp(ctx context.Context, ref string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bin_postings WHERE ref = $1)`, ref).Scan(&exists); err != nil {
		return false, apperr.Storage(err)
	}
	return exists, nil
}

func scanBin(row pgx.Row) (Bin, error) {
	var (
		b      Bin
		status string
	)
	if err := row.Scan(&b.ID, &b.Location, &b.Latitude, &b.Longitude, &b.FillLevel, &status,
		&b.LastEmptied, &b.Version, &b.CreatedAt); err != nil {
		return Bin{}, err
	}
	b.Status = policy.BinStatus(status)
	b.LastEmptied = b.LastEmptied.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}
