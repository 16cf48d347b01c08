// Package redemption exchanges points for partner offers and tracks the
// single-use codes it issues.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/metrics"
	"github.com/smartdustbin/ecorewards/internal/notification"
	"github.com/smartdustbin/ecorewards/internal/offers"
	"github.com/smartdustbin/ecorewards/internal/retry"
)

const (
	// DefaultTTL is how long an issued code stays usable.
	DefaultTTL = 30 * 24 * time.Hour

	maxCodeAttempts  = 5
	defaultListLimit = 50
)

// Debiter spends points from a balance.
type Debiter interface {
	Debit(ctx context.Context, userID, redemptionID string, points int64) (balance.Outcome, error)
	Debited(ctx context.Context, redemptionID string) (bool, error)
}

// Service issues and consumes redemptions.
type Service struct {
	store    Store
	balances Debiter
	catalog  offers.Catalog
	notifier notification.Notifier
	ttl      time.Duration
	newCode  CodeFunc
	policy   retry.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a redemption service. A non-positive ttl falls back to DefaultTTL.
func NewService(store Store, balances Debiter, catalog offers.Catalog, notifier notification.Notifier, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		balances: balances,
		catalog:  catalog,
		notifier: notifier,
		ttl:      ttl,
		newCode:  NewCode,
		policy:   retry.DefaultPolicy(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RedeemInput identifies the exchange. RedemptionID is optional; supplying it
// makes a retried request replay instead of spending twice.
type RedeemInput struct {
	UserID       string
	OfferID      string
	RedemptionID string
}

// Redeem debits the offer price and issues a code. On InsufficientBalance no
// record is written. A known redemption id replays the stored record, and one
// that was charged but never recorded is finished without checking the offer
// window again.
func (s *Service) Redeem(ctx context.Context, input RedeemInput) (Record, error) {
	if input.UserID == "" || input.OfferID == "" {
		return Record{}, apperr.Invalid("user id and offer id are required")
	}

	id := strings.TrimSpace(input.RedemptionID)
	debited := false
	if id == "" {
		id = uuid.NewString()
	} else {
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			if existing.UserID != input.UserID || existing.OfferID != input.OfferID {
				return Record{}, apperr.Invalid("redemption id %s was already used for a different request", id)
			}
			return existing, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return Record{}, err
		}
		if debited, err = s.balances.Debited(ctx, id); err != nil {
			return Record{}, err
		}
	}

	offer, err := s.catalog.GetOffer(ctx, input.OfferID)
	if err != nil {
		return Record{}, err
	}
	now := s.now()
	// A paid redemption is completed even if the offer closed since the debit.
	if !debited && !offer.AvailableAt(now) {
		metrics.RecordRedemption("unavailable")
		return Record{}, fmt.Errorf("%w: offer %s is not redeemable now", apperr.ErrOfferUnavailable, offer.ID)
	}

	if _, err := s.balances.Debit(ctx, input.UserID, id, offer.PointsRequired); err != nil {
		if errors.Is(err, apperr.ErrInsufficientBalance) {
			metrics.RecordRedemption("insufficient")
		}
		return Record{}, err
	}

	rec := Record{
		ID:          id,
		UserID:      input.UserID,
		OfferID:     offer.ID,
		PartnerName: offer.PartnerName,
		PointsSpent: offer.PointsRequired,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.issue(ctx, &rec); err != nil {
		s.logger.Error("redemption debited but not recorded",
			slog.String("redemption_id", id), slog.String("user_id", input.UserID), slog.String("error", err.Error()))
		return Record{}, err
	}

	metrics.RecordRedemption("issued")
	s.logger.Info("redemption issued",
		slog.String("redemption_id", rec.ID), slog.String("user_id", rec.UserID),
		slog.String("offer_id", rec.OfferID), slog.Int64("points", rec.PointsSpent))
	if s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindRewardRedeemed,
			Destination: rec.UserID,
			Body:        fmt.Sprintf("Your %s code %s is valid until %s", offer.PartnerName, rec.Code, rec.ExpiresAt.Format("2006-01-02")),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.String("error", err.Error()))
		}
	}
	return rec, nil
}

// issue persists rec, drawing a fresh code on every collision.
func (s *Service) issue(ctx context.Context, rec *Record) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode(rec.PartnerName)
		if err != nil {
			return err
		}
		rec.Code = code
		err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
			return s.store.Create(ctx, *rec)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRedemptionExists):
			// A concurrent call with the same id won the insert.
			existing, getErr := s.store.Get(ctx, rec.ID)
			if getErr != nil {
				return getErr
			}
			*rec = existing
			return nil
		case errors.Is(err, apperr.ErrDuplicateCode):
			s.logger.Debug("redemption code collision", slog.String("code", code), slog.Int("attempt", attempt))
		default:
			return err
		}
	}
	return fmt.Errorf("%w: no unique code after %d attempts", apperr.ErrDuplicateCode, maxCodeAttempts)
}

// MarkUsed consumes the redemption. A second call fails with AlreadyUsed and
// an expired record fails with Expired; neither changes state.
func (s *Service) MarkUsed(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, apperr.Invalid("redemption id is required")
	}
	rec, err := s.store.MarkUsed(ctx, id, s.now())
	if err != nil {
		return Record{}, err
	}
	metrics.RecordRedemption("used")
	s.logger.Info("redemption used", slog.String("redemption_id", id), slog.String("user_id", rec.UserID))
	return rec, nil
}

// Get returns one redemption.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, apperr.Invalid("redemption id is required")
	}
	return s.store.Get(ctx, id)
}

// ListByUser returns the user's redemptions, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if userID == "" {
		return nil, apperr.Invalid("user id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListByUser(ctx, userID, limit)
}
