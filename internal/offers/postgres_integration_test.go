//go:build integration

package offers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/infra/infratest"
)

func TestPostgresCatalog(t *testing.T) {
	pool := infratest.Pool(t)
	catalog := NewPostgresCatalog(pool)
	ctx := context.Background()

	id := "it-" + uuid.NewString()
	until := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	_, err := pool.Exec(ctx, `INSERT INTO partner_offers (id, title, partner_name, points_required, valid_to)
        VALUES ($1, 'Integration offer', 'Integration Partner', 42, $2)`, id, until)
	require.NoError(t, err)

	offer, err := catalog.GetOffer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), offer.PointsRequired)
	assert.True(t, offer.ValidFrom.IsZero())
	assert.True(t, offer.ValidTo.Equal(until))
	assert.True(t, offer.AvailableAt(time.Now()))

	all, err := catalog.List(ctx)
	require.NoError(t, err)
	found := false
	for _, o := range all {
		found = found || o.ID == id
	}
	assert.True(t, found)

	_, err = catalog.GetOffer(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
