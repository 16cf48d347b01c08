package offers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// PostgresCatalog reads offers from the partner_offers table.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

// NewPostgresCatalog builds a catalog backed by PostgreSQL.
func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const offerColumns = `id, title, partner_name, category, points_required, valid_from, valid_to`

// GetOffer fetches a single offer.
func (c *PostgresCatalog) GetOffer(ctx context.Context, id string) (Offer, error) {
	o, err := scanOffer(c.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM partner_offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, apperr.NotFound("offer", id)
		}
		return Offer{}, apperr.Storage(err)
	}
	return o, nil
}

// List returns every offer ordered by price.
func (c *PostgresCatalog) List(ctx context.Context) ([]Offer, error) {
	rows, err := c.db.Query(ctx, `SELECT `+offerColumns+` FROM partner_offers ORDER BY points_required, id`)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, o)
	}
	return out, apperr.Storage(rows.Err())
}

func scanOffer(row pgx.Row) (Offer, error) {
	var (
		o        Offer
		from, to *time.Time
	)
	if err := row.Scan(&o.ID, &o.Title, &o.PartnerName, &o.Category, &o.PointsRequired, &from, &to); err != nil {
		return Offer{}, err
	}
	if from != nil {
		o.ValidFrom = from.UTC()
	}
	if to != nil {
		o.ValidTo = to.UTC()
	}
	return o, nil
}
