// Package deposit records deposit events exactly once and drives the balance
// credit and bin top-up they imply as a two-step, resumable saga.
package deposit

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
	"github.com/smartdustbin/ecorewards/internal/bins"
	"github.com/smartdustbin/ecorewards/internal/metrics"
	"github.com/smartdustbin/ecorewards/internal/notification"
	"github.com/smartdustbin/ecorewards/internal/policy"
	"github.com/smartdustbin/ecorewards/internal/retry"
)

const (
	stageBalance = "balance"
	stageBin     = "bin"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Balances is the slice of the balance service used by the saga.
type Balances interface {
	Get(ctx context.Context, userID string) (balance.Account, error)
	Credit(ctx context.Context, userID, depositID string, points int64) (balance.Outcome, error)
}

// Bins is the slice of the bin service used by the saga.
type Bins interface {
	Get(ctx context.Context, binID string) (bins.Bin, error)
	TopUp(ctx context.Context, binID, depositID string, weightKg float64) (bins.TopUpResult, error)
}

// Service implements the deposit ledger.
type Service struct {
	store    Store
	balances Balances
	bins     Bins
	notifier notification.Notifier
	policy   retry.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the deposit saga. stepPolicy bounds the retries of each
// half before the deposit is left pending.
func NewService(store Store, balances Balances, bins Bins, notifier notification.Notifier, stepPolicy retry.Policy, logger *slog.Logger) *Service {
	if stepPolicy.MaxAttempts <= 0 {
		stepPolicy = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		balances: balances,
		bins:     bins,
		notifier: notifier,
		policy:   stepPolicy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordInput captures one scanned deposit.
type RecordInput struct {
	UserID    string
	BinID     string
	Category  string
	WeightKg  float64
	RequestID string
}

// Result is the outcome of Record.
type Result struct {
	Record    Record
	Progress  Progress
	FillLevel float64
	BinStatus policy.BinStatus
	Account   balance.Account
	Replayed  bool
}

// ResumeReport summarizes a Resume pass.
type ResumeReport struct {
	Scanned   int      `json:"scanned"`
	Completed int      `json:"completed"`
	Pending   []string `json:"pending"`
}

// Record prices and appends the deposit, then applies the credit and the
// top-up. Submitting the same request id again returns the stored record and
// completes whichever half is still pending.
func (s *Service) Record(ctx context.Context, input RecordInput) (Result, error) {
	rec, err := s.prepare(input)
	if err != nil {
		return Result{}, err
	}

	if _, err := s.balances.Get(ctx, rec.UserID); err != nil {
		return Result{}, err
	}
	if _, err := s.bins.Get(ctx, rec.BinID); err != nil {
		return Result{}, err
	}

	var stored Record
	replayed := false
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var appendErr error
		stored, appendErr = s.store.Append(ctx, rec)
		if errors.Is(appendErr, ErrDuplicateRequest) {
			replayed = true
			return nil
		}
		return appendErr
	})
	if err != nil {
		return Result{}, err
	}
	if replayed && !stored.samePayload(rec) {
		return Result{}, apperr.Invalid("request id %s was already used for a different deposit", rec.RequestID)
	}

	result, err := s.apply(ctx, stored)
	if err != nil {
		return Result{}, err
	}
	result.Replayed = replayed
	metrics.RecordDeposit(string(stored.Category), stored.Points, replayed)
	s.logger.Info("deposit recorded",
		slog.String("deposit_id", stored.ID),
		slog.String("user_id", stored.UserID),
		slog.String("bin_id", stored.BinID),
		slog.Int64("points", stored.Points),
		slog.Bool("replayed", replayed))
	return result, nil
}

// Get returns a deposit and its saga progress.
func (s *Service) Get(ctx context.Context, id string) (Record, Progress, error) {
	if id == "" {
		return Record{}, Progress{}, apperr.Invalid("deposit id is required")
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Record{}, Progress{}, err
	}
	p, err := s.store.Progress(ctx, id)
	if err != nil {
		return Record{}, Progress{}, err
	}
	return rec, p, nil
}

// ListByUser returns the user's deposit history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if userID == "" {
		return nil, apperr.Invalid("user id is required")
	}
	return s.store.ListByUser(ctx, userID, clampLimit(limit))
}

// List pages through every deposit, newest first. cursor is the id of the
// last deposit of the previous page.
func (s *Service) List(ctx context.Context, cursor string, limit int) (Page, error) {
	return s.store.List(ctx, cursor, clampLimit(limit))
}

// Totals aggregates deposits of one user, or of everyone when userID is empty.
func (s *Service) Totals(ctx context.Context, userID string, since time.Time) (Totals, error) {
	return s.store.Totals(ctx, userID, since)
}

// Resume re-applies up to limit deposits whose saga is incomplete.
func (s *Service) Resume(ctx context.Context, limit int) (ResumeReport, error) {
	pending, err := s.store.Pending(ctx, clampLimit(limit))
	if err != nil {
		return ResumeReport{}, err
	}
	report := ResumeReport{Scanned: len(pending), Pending: []string{}}
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, apperr.Storage(err)
		}
		if _, err := s.apply(ctx, rec); err != nil {
			report.Pending = append(report.Pending, rec.ID)
			continue
		}
		report.Completed++
	}
	s.logger.Info("deposit resume finished",
		slog.Int("scanned", report.Scanned), slog.Int("completed", report.Completed), slog.Int("pending", len(report.Pending)))
	return report, nil
}

func (s *Service) prepare(input RecordInput) (Record, error) {
	requestID := strings.TrimSpace(input.RequestID)
	if requestID == "" {
		return Record{}, apperr.Invalid("request id is required")
	}
	if input.UserID == "" || input.BinID == "" {
		return Record{}, apperr.Invalid("user id and bin id are required")
	}
	category, err := policy.ParseCategory(input.Category)
	if err != nil {
		return Record{}, err
	}
	points, err := policy.Price(category, input.WeightKg)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        uuid.NewString(),
		RequestID: requestID,
		UserID:    input.UserID,
		BinID:     input.BinID,
		Category:  category,
		WeightKg:  input.WeightKg,
		Points:    points,
		CreatedAt: s.now(),
	}, nil
}

// apply runs both halves independently; a failure in one does not prevent
// the other from landing. The progress journal is written after each pass.
func (s *Service) apply(ctx context.Context, rec Record) (Result, error) {
	progress, err := s.store.Progress(ctx, rec.ID)
	if err != nil {
		return Result{}, err
	}
	result := Result{Record: rec}
	before := progress

	var balanceErr, binErr, readErr error
	if progress.BalanceApplied {
		result.Account, readErr = s.balances.Get(ctx, rec.UserID)
	} else {
		balanceErr = s.credit(ctx, rec, &result)
		progress.BalanceApplied = balanceErr == nil
	}

	if progress.BinApplied {
		bin, err := s.bins.Get(ctx, rec.BinID)
		result.FillLevel, result.BinStatus = bin.FillLevel, bin.Status
		readErr = errors.Join(readErr, err)
	} else {
		binErr = s.topUp(ctx, rec, &result)
		progress.BinApplied = binErr == nil
	}

	stepErr := errors.Join(balanceErr, binErr)
	if progress != before || stepErr != nil {
		progress.Attempts++
		progress.LastError = ""
		if stepErr != nil {
			progress.LastError = stepErr.Error()
		}
		progress.UpdatedAt = s.now()
		// A lost journal write only makes the next pass re-run an idempotent step.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := s.store.SaveProgress(saveCtx, progress); err != nil {
			s.logger.Error("deposit progress not saved", slog.String("deposit_id", rec.ID), slog.String("error", err.Error()))
		}
		cancel()
	}
	result.Progress = progress

	switch {
	case progress.BalanceApplied && !progress.BinApplied:
		metrics.RecordSagaPending(stageBin)
		s.logger.Warn("deposit applied-pending-bin-update",
			slog.String("deposit_id", rec.ID), slog.String("bin_id", rec.BinID), slog.String("error", errString(binErr)))
		return Result{}, fmt.Errorf("deposit %s pending bin update: %w", rec.ID, binErr)
	case !progress.BalanceApplied && progress.BinApplied:
		metrics.RecordSagaPending(stageBalance)
		s.logger.Warn("deposit applied-pending-balance-update",
			slog.String("deposit_id", rec.ID), slog.String("user_id", rec.UserID), slog.String("error", errString(balanceErr)))
		return Result{}, fmt.Errorf("deposit %s pending balance update: %w", rec.ID, balanceErr)
	case !progress.Complete():
		metrics.RecordSagaPending(stageBalance)
		metrics.RecordSagaPending(stageBin)
		s.logger.Warn("deposit pending", slog.String("deposit_id", rec.ID), slog.String("error", errString(stepErr)))
		return Result{}, fmt.Errorf("deposit %s pending: %w", rec.ID, stepErr)
	case readErr != nil:
		return Result{}, readErr
	}
	return result, nil
}

func (s *Service) credit(ctx context.Context, rec Record, result *Result) error {
	if rec.Points == 0 {
		account, err := s.balances.Get(ctx, rec.UserID)
		result.Account = account
		return err
	}
	var outcome balance.Outcome
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		outcome, err = s.balances.Credit(ctx, rec.UserID, rec.ID, rec.Points)
		return err
	})
	if err != nil {
		return err
	}
	result.Account = outcome.Account
	if outcome.Promoted {
		s.notify(ctx, notification.Message{
			Kind:        notification.KindRankPromotion,
			Destination: rec.UserID,
			Body:        fmt.Sprintf("Congratulations, you are now %s (level %d)", outcome.Account.Rank, outcome.Account.Level),
		})
	}
	return nil
}

func (s *Service) topUp(ctx context.Context, rec Record, result *Result) error {
	var res bins.TopUpResult
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		res, err = s.bins.TopUp(ctx, rec.BinID, rec.ID, rec.WeightKg)
		return err
	})
	if err != nil {
		return err
	}
	result.FillLevel, result.BinStatus = res.Bin.FillLevel, res.Bin.Status
	if res.BecameFull && !res.Replayed {
		s.notify(ctx, notification.Message{
			Kind:        notification.KindBinFull,
			Destination: notification.DestinationOperations,
			Body:        fmt.Sprintf("Bin %s at %s is full (%.1f%%)", res.Bin.ID, res.Bin.Location, res.Bin.FillLevel),
		})
	}
	return nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
