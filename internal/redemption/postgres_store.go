package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

const (
	constraintPrimaryKey = "redemptions_pkey"
	constraintCode       = "redemptions_code_key"
)

// PostgresStore persists redemptions in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a redemption store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const redemptionColumns = `id, user_id, offer_id, partner_name, points_spent, code, created_at, expires_at, used, used_at`

// Create inserts a redemption record.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `INSERT INTO redemptions (`+redemptionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, NULL)`,
		rec.ID, rec.UserID, rec.OfferID, rec.PartnerName, rec.PointsSpent, rec.Code,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	switch {
	case err == nil:
		return nil
	case apperr.IsUniqueViolation(err, constraintCode):
		return fmt.Errorf("%w: %s", apperr.ErrDuplicateCode, rec.Code)
	case apperr.IsUniqueViolation(err, constraintPrimaryKey):
		return ErrRedemptionExists
	default:
		return apperr.Storage(err)
	}
}

// Get fetches a redemption by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("redemption", id)
	}
	return rec, apperr.Storage(err)
}

// ListByUser returns the user's redemptions, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+redemptionColumns+` FROM redemptions
        WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
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

// MarkUsed flips the used flag with a guarded update so a code is consumed
// at most once even under concurrent calls.
func (s *PostgresStore) MarkUsed(ctx context.Context, id string, at time.Time) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, `UPDATE redemptions SET used = true, used_at = $2
        WHERE id = $1 AND used = false AND expires_at > $2
        RETURNING `+redemptionColumns, id, at.UTC()))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.Storage(err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if current.Used {
		return Record{}, fmt.Errorf("%w: redemption %s", apperr.ErrAlreadyUsed, id)
	}
	return Record{}, fmt.Errorf("%w: redemption %s expired at %s", apperr.ErrExpired, id, current.ExpiresAt.Format(time.RFC3339))
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		usedAt *time.Time
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.OfferID, &rec.PartnerName, &rec.PointsSpent, &rec.Code,
		&rec.CreatedAt, &rec.ExpiresAt, &rec.Used, &usedAt); err != nil {
		return Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	if usedAt != nil {
		rec.UsedAt = usedAt.UTC()
	}
	return rec, nil
}
