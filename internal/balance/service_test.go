package balance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/logging"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

func newTestService(t *testing.T, maxAttempts int) (*Service, Store) {
	t.Helper()
	store := NewInMemory()
	return NewService(store, maxAttempts, logging.Discard()), store
}

func TestOpenIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	first, err := svc.Open(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, policy.RankNovice, first.Rank)
	assert.Equal(t, 1, first.Level)

	_, err = svc.Credit(ctx, "u-1", "d-1", 40)
	require.NoError(t, err)

	again, err := svc.Open(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), again.TotalPoints)

	_, err = svc.Open(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreditRecomputesRank(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	_, err := svc.Open(ctx, "u-1")
	require.NoError(t, err)

	out, err := svc.Credit(ctx, "u-1", "d-1", 10)
	require.NoError(t, err)
	assert.True(t, out.Promoted)
	assert.Equal(t, policy.RankEcoRookie, out.Account.Rank)

	out, err = svc.Credit(ctx, "u-1", "d-2", 195)
	require.NoError(t, err)
	assert.Equal(t, int64(205), out.Account.TotalPoints)
	assert.Equal(t, 3, out.Account.Level)
	assert.Equal(t, policy.RankGreenGuardian, out.Account.Rank)
	assert.True(t, out.Promoted)

	stored, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, out.Account.Rank, stored.Rank)
	assert.Equal(t, out.Account.Version, stored.Version)
}

func TestCreditReplayIsNoop(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	svc.Open(ctx, "u-1")

	_, err := svc.Credit(ctx, "u-1", "d-1", 10)
	require.NoError(t, err)
	out, err := svc.Credit(ctx, "u-1", "d-1", 10)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, int64(10), out.Account.TotalPoints)
}

func TestCreditValidation(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	svc.Open(ctx, "u-1")

	for _, points := range []int64{0, -5} {
		_, err := svc.Credit(ctx, "u-1", "d-1", points)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	}
	_, err := svc.Credit(ctx, "u-1", "", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Credit(ctx, "missing", "d-1", 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDebitScenario(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()
	SeedBalance(store, "u-1", 450, 200)

	_, err := svc.Debit(ctx, "u-1", "r-1", 300)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	unchanged, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), unchanged.UsedPoints)

	out, err := svc.Debit(ctx, "u-1", "r-2", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(400), out.Account.UsedPoints)

	available, err := svc.Available(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), available)
}

func TestDebitReplayWhenBalanceIsExhausted(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()
	SeedBalance(store, "u-1", 100, 0)

	_, err := svc.Debit(ctx, "u-1", "r-1", 100)
	require.NoError(t, err)

	out, err := svc.Debit(ctx, "u-1", "r-1", 100)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, int64(100), out.Account.UsedPoints)
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()
	SeedBalance(store, "u-1", 300, 0)

	const workers = 16
	var wg sync.WaitGroup
	var ok, insufficient, other atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Debit(ctx, "u-1", fmt.Sprintf("r-%d", i), 300)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, apperr.ErrInsufficientBalance):
				insufficient.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(workers-1), insufficient.Load())
	assert.Zero(t, other.Load())

	final, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), final.UsedPoints)
}

func TestConcurrentCreditsAndDebitsKeepInvariant(t *testing.T) {
	svc, _ := newTestService(t, 1_000)
	ctx := context.Background()
	svc.Open(ctx, "u-1")

	const rounds = 40
	var wg sync.WaitGroup
	var debited atomic.Int64
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Credit(ctx, "u-1", fmt.Sprintf("d-%d", i), 10)
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Debit(ctx, "u-1", fmt.Sprintf("r-%d", i), 15); err == nil {
				debited.Add(15)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
			}
		}(i)
	}
	wg.Wait()

	final, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(rounds*10), final.TotalPoints)
	assert.Equal(t, debited.Load(), final.UsedPoints)
	assert.LessOrEqual(t, final.UsedPoints, final.TotalPoints)
	assert.Equal(t, policy.Rank(final.TotalPoints).Label, final.Rank)
}

type conflictingStore struct {
	Store
}

func (conflictingStore) Apply(context.Context, int64, Account, Posting) error {
	return ErrVersionConflict
}

func TestContentionAfterBoundedAttempts(t *testing.T) {
	inner := NewInMemory()
	svc := NewService(conflictingStore{Store: inner}, 3, logging.Discard())
	ctx := context.Background()
	_, err := svc.Open(ctx, "u-1")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, "u-1", "d-1", 5)
	assert.ErrorIs(t, err, apperr.ErrContention)
	assert.True(t, apperr.Retryable(err))
}

func TestCancelledContextSurfacesTimeout(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Open(context.Background(), "u-1")
	cancel()

	_, err := svc.Credit(ctx, "u-1", "d-1", 5)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
}
