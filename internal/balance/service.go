// Package balance owns the per-user point balance: atomic credits from
// deposits, guarded debits from redemptions, and the derived rank.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/metrics"
	"github.com/smartdustbin/ecorewards/internal/policy"
	"github.com/smartdustbin/ecorewards/internal/retry"
)

const defaultMaxAttempts = 5

// Service exposes balance operations backed by a Store.
type Service struct {
	store   Store
	backoff retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a balance service. maxAttempts bounds the optimistic
// read-modify-write loop before ErrContention is returned.
func NewService(store Store, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: store,
		backoff: retry.Policy{
			MaxAttempts:    maxAttempts,
			InitialBackoff: 2 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
			Multiplier:     2,
			Jitter:         0.5,
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Outcome describes the result of a credit or debit.
type Outcome struct {
	Account  Account
	Replayed bool
	Promoted bool
}

// Open provisions a zero balance for userID. Opening an existing account
// returns it unchanged.
func (s *Service) Open(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, apperr.Invalid("user id is required")
	}
	now := s.now()
	tier := policy.InitialTier()
	account := Account{
		UserID:    userID,
		Rank:      tier.Label,
		Level:     tier.Level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return s.store.Get(ctx, userID)
		}
		return Account{}, err
	}
	return account, nil
}

// Get returns the current balance of userID.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, apperr.Invalid("user id is required")
	}
	return s.store.Get(ctx, userID)
}

// Available returns totalPoints - usedPoints. It is a plain read; Debit never
// relies on it.
func (s *Service) Available(ctx context.Context, userID string) (int64, error) {
	account, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Available(), nil
}

// Count returns the number of provisioned accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Credit adds points earned by the deposit depositID and recomputes the rank
// in the same write. Crediting the same deposit twice is a no-op.
func (s *Service) Credit(ctx context.Context, userID, depositID string, points int64) (Outcome, error) {
	if err := validate(userID, depositID, points); err != nil {
		return Outcome{}, err
	}
	return s.mutate(ctx, PostingCredit, userID, depositID, points, func(a Account) (Account, error) {
		a.TotalPoints += points
		tier := policy.Rank(a.TotalPoints)
		a.Level, a.Rank = tier.Level, tier.Label
		return a, nil
	})
}

// Debit spends points for the redemption redemptionID. The balance check is
// evaluated against the version being replaced, so two concurrent debits can
// never both pass on the same points.
func (s *Service) Debit(ctx context.Context, userID, redemptionID string, points int64) (Outcome, error) {
	if err := validate(userID, redemptionID, points); err != nil {
		return Outcome{}, err
	}
	return s.mutate(ctx, PostingDebit, userID, redemptionID, points, func(a Account) (Account, error) {
		if a.UsedPoints+points > a.TotalPoints {
			return Account{}, fmt.Errorf("%w: available %d, required %d", apperr.ErrInsufficientBalance, a.Available(), points)
		}
		a.UsedPoints += points
		return a, nil
	})
}

// Debited reports whether the redemption redemptionID has already been charged.
func (s *Service) Debited(ctx context.Context, redemptionID string) (bool, error) {
	if redemptionID == "" {
		return false, apperr.Invalid("redemption id is required")
	}
	return s.store.HasPosting(ctx, PostingDebit, redemptionID)
}

func (s *Service) mutate(ctx context.Context, kind, userID, ref string, points int64, change func(Account) (Account, error)) (Outcome, error) {
	posting := Posting{Kind: kind, Ref: ref, UserID: userID, Points: points}
	for attempt := 1; attempt <= s.backoff.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, apperr.Storage(err)
		}

		current, err := s.store.Get(ctx, userID)
		if err != nil {
			return Outcome{}, err
		}

		next, err := change(current)
		if err != nil {
			if applied, hasErr := s.store.HasPosting(ctx, kind, ref); hasErr == nil && applied {
				return Outcome{Account: current, Replayed: true}, nil
			}
			return Outcome{}, err
		}
		next.UpdatedAt = s.now()
		posting.At = next.UpdatedAt

		err = s.store.Apply(ctx, current.Version, next, posting)
		switch {
		case err == nil:
			next.Version = current.Version + 1
			return Outcome{
				Account:  next,
				Promoted: kind == PostingCredit && policy.Promoted(tierOf(current), tierOf(next)),
			}, nil
		case errors.Is(err, ErrAlreadyApplied):
			replayed, getErr := s.store.Get(ctx, userID)
			if getErr != nil {
				return Outcome{}, getErr
			}
			return Outcome{Account: replayed, Replayed: true}, nil
		case errors.Is(err, ErrVersionConflict):
			metrics.RecordBalanceConflict(kind)
			s.logger.Debug("balance version conflict",
				slog.String("user_id", userID), slog.String("kind", kind), slog.Int("attempt", attempt))
			if attempt < s.backoff.MaxAttempts {
				if sleepErr := s.backoff.Sleep(ctx, attempt); sleepErr != nil {
					return Outcome{}, apperr.Storage(sleepErr)
				}
			}
		default:
			return Outcome{}, err
		}
	}
	return Outcome{}, fmt.Errorf("%w: %s of user %s gave up after %d attempts", apperr.ErrContention, kind, userID, s.backoff.MaxAttempts)
}

func tierOf(a Account) policy.Tier {
	return policy.Tier{Level: a.Level, Label: a.Rank}
}

func validate(userID, ref string, points int64) error {
	switch {
	case userID == "":
		return apperr.Invalid("user id is required")
	case ref == "":
		return apperr.Invalid("posting reference is required")
	case points <= 0:
		return apperr.Invalid("points must be positive, got %d", points)
	}
	return nil
}
