//go:build integration

package bins

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/infra/infratest"
	"github.com/smartdustbin/ecorewards/internal/logging"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

func TestPostgresTopUpToFull(t *testing.T) {
	pool := infratest.Pool(t)
	svc := NewService(NewPostgresRepository(pool), 20, logging.Discard())
	ctx := context.Background()

	bin, err := svc.Provision(ctx, ProvisionInput{ID: "IT-" + uuid.NewString()[:8], Location: "Integration Ave"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TopUp(ctx, bin.ID, uuid.NewString(), 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, bin.ID)
	require.NoError(t, err)
	assert.InDelta(t, 90, got.FillLevel, 1e-9)
	assert.Equal(t, policy.BinFull, got.Status)

	ref := uuid.NewString()
	_, err = svc.TopUp(ctx, bin.ID, ref, 10)
	require.NoError(t, err)
	replay, err := svc.TopUp(ctx, bin.ID, ref, 10)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, float64(100), replay.Bin.FillLevel)

	emptied, err := svc.Empty(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.BinActive, emptied.Status)
	assert.Zero(t, emptied.FillLevel)
}
