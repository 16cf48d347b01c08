// Package bins tracks the fill level and status of each physical bin.
package bins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/metrics"
	"github.com/smartdustbin/ecorewards/internal/policy"
	"github.com/smartdustbin/ecorewards/internal/retry"
)

const defaultMaxAttempts = 5

// Service implements bin provisioning, top-ups and maintenance transitions.
type Service struct {
	repo    Repository
	backoff retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a bin service.
func NewService(repo Repository, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo: repo,
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

// ProvisionInput describes a new bin.
type ProvisionInput struct {
	ID        string
	Location  string
	Latitude  float64
	Longitude float64
}

// TopUpResult is returned by TopUp.
type TopUpResult struct {
	Bin        Bin
	Replayed   bool
	BecameFull bool
}

// Provision registers an empty, active bin.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (Bin, error) {
	location := strings.TrimSpace(input.Location)
	if location == "" {
		return Bin{}, apperr.Invalid("location is required")
	}
	if math.Abs(input.Latitude) > 90 || math.Abs(input.Longitude) > 180 {
		return Bin{}, apperr.Invalid("coordinates out of range: %f,%f", input.Latitude, input.Longitude)
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = "BIN-" + strings.ToUpper(uuid.NewString()[:8])
	}
	now := s.now()
	bin := Bin{
		ID:          id,
		Location:    location,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		FillLevel:   policy.MinFill,
		Status:      policy.BinActive,
		LastEmptied: now,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, bin); err != nil {
		if errors.Is(err, ErrBinExists) {
			return Bin{}, apperr.Invalid("bin %s already exists", id)
		}
		return Bin{}, err
	}
	return bin, nil
}

// Get returns one bin.
func (s *Service) Get(ctx context.Context, id string) (Bin, error) {
	if id == "" {
		return Bin{}, apperr.Invalid("bin id is required")
	}
	return s.repo.Get(ctx, id)
}

// List returns bins, optionally filtered by status. An empty status lists all.
func (s *Service) List(ctx context.Context, status string) ([]Bin, error) {
	var filter policy.BinStatus
	if status != "" {
		parsed, ok := policy.ParseBinStatus(status)
		if !ok {
			return nil, apperr.Invalid("unknown bin status %q", status)
		}
		filter = parsed
	}
	return s.repo.List(ctx, filter)
}

// TopUp raises the fill level for the deposit depositID. Applying the same
// deposit twice leaves the bin unchanged.
func (s *Service) TopUp(ctx context.Context, binID, depositID string, weightKg float64) (TopUpResult, error) {
	if binID == "" || depositID == "" {
		return TopUpResult{}, apperr.Invalid("bin id and deposit id are required")
	}
	if err := policy.ValidateWeight(weightKg); err != nil {
		return TopUpResult{}, err
	}
	var result TopUpResult
	err := s.mutate(ctx, binID, depositID, weightKg, func(b Bin) (Bin, error) {
		fill, status := policy.TopUp(b.FillLevel, weightKg, b.Status)
		result.BecameFull = b.Status != policy.BinFull && status == policy.BinFull
		b.FillLevel, b.Status = fill, status
		return b, nil
	}, &result)
	if err != nil {
		return TopUpResult{}, err
	}
	if result.BecameFull && !result.Replayed {
		metrics.RecordBinFull()
		s.logger.Info("bin reached capacity", slog.String("bin_id", binID), slog.Float64("fill_level", result.Bin.FillLevel))
	}
	return result, nil
}

// Empty resets the bin after collection.
func (s *Service) Empty(ctx context.Context, binID string) (Bin, error) {
	if binID == "" {
		return Bin{}, apperr.Invalid("bin id is required")
	}
	var result TopUpResult
	err := s.mutate(ctx, binID, "", 0, func(b Bin) (Bin, error) {
		b.FillLevel = policy.MinFill
		b.Status = policy.BinActive
		b.LastEmptied = s.now()
		return b, nil
	}, &result)
	return result.Bin, err
}

// SetStatus moves a bin between active and maintenance. Full is reached only
// through top-ups, an active bin over the threshold stays full and a full bin
// must be emptied before maintenance.
func (s *Service) SetStatus(ctx context.Context, binID, status string) (Bin, error) {
	target, ok := policy.ParseBinStatus(status)
	if !ok {
		return Bin{}, apperr.Invalid("unknown bin status %q", status)
	}
	if target == policy.BinFull {
		return Bin{}, apperr.Invalid("status full is derived from the fill level")
	}
	var result TopUpResult
	err := s.mutate(ctx, binID, "", 0, func(b Bin) (Bin, error) {
		if target == policy.BinMaintenance && b.FillLevel >= policy.FullThreshold {
			return Bin{}, apperr.Invalid("bin %s is full, empty it before maintenance", b.ID)
		}
		b.Status = policy.Normalize(b.FillLevel, target)
		return b, nil
	}, &result)
	return result.Bin, err
}

func (s *Service) mutate(ctx context.Context, binID, ref string, weightKg float64, change func(Bin) (Bin, error), result *TopUpResult) error {
	for attempt := 1; attempt <= s.backoff.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.Storage(err)
		}
		current, err := s.repo.Get(ctx, binID)
		if err != nil {
			return err
		}
		if ref != "" {
			applied, err := s.repo.HasTopUp(ctx, ref)
			if err != nil {
				return err
			}
			if applied {
				*result = TopUpResult{Bin: current, Replayed: true}
				return nil
			}
		}
		next, err := change(current)
		if err != nil {
			return err
		}

		err = s.repo.Apply(ctx, current.Version, next, ref, weightKg)
		switch {
		case err == nil:
			next.Version = current.Version + 1
			result.Bin = next
			return nil
		case errors.Is(err, ErrAlreadyApplied):
			replayed, getErr := s.repo.Get(ctx, binID)
			if getErr != nil {
				return getErr
			}
			*result = TopUpResult{Bin: replayed, Replayed: true}
			return nil
		case errors.Is(err, ErrVersionConflict):
			metrics.RecordBinConflict()
			s.logger.Debug("bin version conflict", slog.String("bin_id", binID), slog.Int("attempt", attempt))
			if attempt < s.backoff.MaxAttempts {
				if sleepErr := s.backoff.Sleep(ctx, attempt); sleepErr != nil {
					return apperr.Storage(sleepErr)
				}
			}
		default:
			return err
		}
	}
	return fmt.Errorf("%w: bin %s gave up after %d attempts", apperr.ErrContention, binID, s.backoff.MaxAttempts)
}
