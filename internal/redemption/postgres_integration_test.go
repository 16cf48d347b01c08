//go:build integration

package redemption

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/infra/infratest"
)

func TestPostgresCreateAndMarkUsed(t *testing.T) {
	pool := infratest.Pool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	user := "it-" + uuid.NewString()
	infratest.SeedUser(t, pool, user)

	now := time.Now().UTC()
	rec := Record{
		ID: uuid.NewString(), UserID: user, OfferID: "cafe-coffee", PartnerName: "GreenBean Cafe",
		PointsSpent: 150, Code: "GR-" + uuid.NewString()[:8], CreatedAt: now, ExpiresAt: now.Add(DefaultTTL),
	}
	require.NoError(t, store.Create(ctx, rec))

	clash := rec
	clash.ID = uuid.NewString()
	assert.ErrorIs(t, store.Create(ctx, clash), apperr.ErrDuplicateCode)

	again := rec
	again.Code = "GR-" + uuid.NewString()[:8]
	assert.ErrorIs(t, store.Create(ctx, again), ErrRedemptionExists)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.MarkUsed(ctx, rec.ID, time.Now().UTC()); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, apperr.ErrAlreadyUsed)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), success.Load())

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Used)
	assert.False(t, got.UsedAt.IsZero())
}

func TestPostgresMarkUsedExpired(t *testing.T) {
	pool := infratest.Pool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	user := "it-" + uuid.NewString()
	infratest.SeedUser(t, pool, user)

	past := time.Now().UTC().Add(-48 * time.Hour)
	rec := Record{
		ID: uuid.NewString(), UserID: user, OfferID: "transit-day", PartnerName: "CityTransit",
		PointsSpent: 300, Code: "CI-" + uuid.NewString()[:8], CreatedAt: past, ExpiresAt: past.Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, rec))

	_, err := store.MarkUsed(ctx, rec.ID, time.Now().UTC())
	assert.ErrorIs(t, err, apperr.ErrExpired)

	list, err := store.ListByUser(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Used)
}
