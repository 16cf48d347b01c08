package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

const sampleCatalog = `
offers:
  - id: transit-day
    title: One-day transit pass
    partner_name: CityTransit
    points_required: 300
  - id: cafe-coffee
    title: Free coffee
    partner_name: GreenBean Cafe
    points_required: 150
    valid_from: 2026-01-01T00:00:00Z
    valid_to: 2026-06-30T00:00:00Z
`

func TestParseCatalog(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	ctx := context.Background()
	list, err := cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cafe-coffee", list[0].ID)
	assert.Equal(t, "transit-day", list[1].ID)

	coffee, err := cat.GetOffer(ctx, "cafe-coffee")
	require.NoError(t, err)
	assert.Equal(t, int64(150), coffee.PointsRequired)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), coffee.ValidTo.UTC())

	_, err = cat.GetOffer(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestParseRejectsInvalidOffers(t *testing.T) {
	cases := map[string]string{
		"no points":   "offers:\n  - id: a\n    partner_name: P\n",
		"no partner":  "offers:\n  - id: a\n    points_required: 10\n",
		"duplicate":   "offers:\n  - {id: a, partner_name: P, points_required: 1}\n  - {id: a, partner_name: P, points_required: 2}\n",
		"bad window":  "offers:\n  - {id: a, partner_name: P, points_required: 1, valid_from: 2026-02-01T00:00:00Z, valid_to: 2026-01-01T00:00:00Z}\n",
		"not a yaml ": "offers: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestAvailableAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	o := Offer{ValidFrom: from, ValidTo: to}

	assert.False(t, o.AvailableAt(from.Add(-time.Second)))
	assert.True(t, o.AvailableAt(from))
	assert.True(t, o.AvailableAt(to))
	assert.False(t, o.AvailableAt(to.Add(time.Second)))
	assert.True(t, Offer{}.AvailableAt(time.Now()))
}

func TestLoadShippedCatalog(t *testing.T) {
	cat, err := LoadFile("../../configs/offers.yaml")
	require.NoError(t, err)
	list, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, err = LoadFile("does-not-exist.yaml")
	assert.Error(t, err)
}
