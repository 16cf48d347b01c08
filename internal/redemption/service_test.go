package redemption

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/logging"
	"github.com/smartdustbin/ecorewards/internal/notification"
	"github.com/smartdustbin/ecorewards/internal/offers"
)

type fixture struct {
	svc      *Service
	store    Store
	ledger   balance.Store
	balances *balance.Service
	notes    *notification.Recorder
}

func newFixture(t *testing.T, catalogOffers ...offers.Offer) *fixture {
	t.Helper()
	if len(catalogOffers) == 0 {
		catalogOffers = []offers.Offer{
			{ID: "coffee", PartnerName: "GreenBean Cafe", PointsRequired: 200},
			{ID: "transit", PartnerName: "CityTransit", PointsRequired: 300},
		}
	}
	catalog, err := offers.NewMemoryCatalog(catalogOffers...)
	require.NoError(t, err)

	ledger := balance.NewInMemory()
	balances := balance.NewService(ledger, 1000, logging.Discard())
	store := NewMemoryStore()
	notes := &notification.Recorder{}
	return &fixture{
		svc:      NewService(store, balances, catalog, notes, 0, logging.Discard()),
		store:    store,
		ledger:   ledger,
		balances: balances,
		notes:    notes,
	}
}

func TestRedeemScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 450, 200)

	_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "transit"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientBalance), "got %v", err)

	history, err := f.svc.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, history, "a failed debit must not leave a record")

	rec, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), rec.PointsSpent)
	assert.False(t, rec.Used)
	assert.Equal(t, DefaultTTL, rec.ExpiresAt.Sub(rec.CreatedAt))
	assert.Regexp(t, regexp.MustCompile(`^GR-[A-Z0-9]{8}$`), rec.Code)

	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), account.UsedPoints)

	assert.Len(t, f.notes.Messages(notification.KindRewardRedeemed), 1)
}

func TestConcurrentRedeemSpendsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 300, 0)

	const callers = 16
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "transit"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, insufficient)

	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), account.UsedPoints)
	history, err := f.svc.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRedeemWithRedemptionIDReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 1000, 0)

	in := RedeemInput{UserID: "u1", OfferID: "coffee", RedemptionID: "r-1"}
	first, err := f.svc.Redeem(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.Redeem(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), account.UsedPoints)

	_, err = f.svc.Redeem(ctx, RedeemInput{UserID: "u2", OfferID: "coffee", RedemptionID: "r-1"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput), "got %v", err)
}

func TestRedeemRetriesCodeCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 1000, 0)

	codes := []string{"GR-AAAAAAAA", "GR-AAAAAAAA", "GR-BBBBBBBB"}
	f.svc.newCode = func(string) (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)
	second, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)
	assert.Equal(t, "GR-AAAAAAAA", first.Code)
	assert.Equal(t, "GR-BBBBBBBB", second.Code)
}

func TestRedeemGivesUpOnPersistentCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 1000, 0)
	f.svc.newCode = func(string) (string, error) { return "GR-SAMECODE", nil }

	_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee", RedemptionID: "r-1"})
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee", RedemptionID: "r-2"})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateCode), "got %v", err)

	// Retrying the same redemption id after fixing the generator does not spend again.
	f.svc.newCode = NewCode
	_, err = f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee", RedemptionID: "r-2"})
	require.NoError(t, err)
	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), account.UsedPoints)
}

func TestRedeemRespectsOfferWindow(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t,
		offers.Offer{ID: "future", PartnerName: "Later Ltd", PointsRequired: 10, ValidFrom: now.Add(24 * time.Hour)},
		offers.Offer{ID: "past", PartnerName: "Gone Inc", PointsRequired: 10, ValidTo: now.Add(-time.Hour)},
	)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 100, 0)

	for _, id := range []string{"future", "past"} {
		_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: id})
		assert.True(t, errors.Is(err, apperr.ErrOfferUnavailable), "%s: got %v", id, err)
	}
	_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "missing"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.UsedPoints)
}

// failingCreateStore rejects the first failures inserts.
type failingCreateStore struct {
	Store
	failures int
}

func (s *failingCreateStore) Create(ctx context.Context, rec Record) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("insert failed")
	}
	return s.Store.Create(ctx, rec)
}

func TestRetryCompletesAfterOfferWindowCloses(t *testing.T) {
	start := time.Now().UTC()
	f := newFixture(t, offers.Offer{ID: "flash", PartnerName: "Flash Sale", PointsRequired: 100, ValidTo: start.Add(time.Hour)})
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 150, 0)
	f.svc.store = &failingCreateStore{Store: f.store, failures: 1}
	f.svc.now = func() time.Time { return start }

	in := RedeemInput{UserID: "u1", OfferID: "flash", RedemptionID: "r-flash"}
	_, err := f.svc.Redeem(ctx, in)
	require.Error(t, err)
	debited, err := f.balances.Debited(ctx, "r-flash")
	require.NoError(t, err)
	require.True(t, debited)

	// The offer closes before the client retries.
	f.svc.now = func() time.Time { return start.Add(2 * time.Hour) }
	rec, err := f.svc.Redeem(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Code)
	assert.Equal(t, "r-flash", rec.ID)

	replay, err := f.svc.Redeem(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, rec, replay)

	account, err := f.balances.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.UsedPoints)

	// A fresh redemption is still refused once the window is over.
	_, err = f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "flash", RedemptionID: "r-late"})
	assert.True(t, errors.Is(err, apperr.ErrOfferUnavailable), "got %v", err)
}

func TestMarkUsedExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 500, 0)
	rec, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)

	used, err := f.svc.MarkUsed(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, used.Used)
	assert.False(t, used.UsedAt.IsZero())

	_, err = f.svc.MarkUsed(ctx, rec.ID)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyUsed), "got %v", err)

	again, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, used.UsedAt, again.UsedAt)

	_, err = f.svc.MarkUsed(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConcurrentMarkUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 500, 0)
	rec, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)

	const callers = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.MarkUsed(ctx, rec.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestMarkUsedExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 500, 0)
	rec, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee"})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return rec.ExpiresAt.Add(time.Minute) }
	_, err = f.svc.MarkUsed(ctx, rec.ID)
	assert.True(t, errors.Is(err, apperr.ErrExpired), "got %v", err)

	stored, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.Used)
}

func TestListByUserNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balance.SeedBalance(f.ledger, "u1", 1000, 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r-1", "r-2", "r-3"} {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }
		_, err := f.svc.Redeem(ctx, RedeemInput{UserID: "u1", OfferID: "coffee", RedemptionID: id})
		require.NoError(t, err)
	}

	list, err := f.svc.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-3", list[0].ID)
	assert.Equal(t, "r-2", list[1].ID)
}

func TestNewCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z]{2}-[A-Z0-9]{8}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewCode("eco mart")
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.Equal(t, "EC", code[:2])
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)

	assert.Equal(t, "XX", partnerPrefix(""))
	assert.Equal(t, "AX", partnerPrefix("a"))
	assert.Equal(t, "OD", partnerPrefix("1-Odeon"))
}
