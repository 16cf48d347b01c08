package redemption

import (
	"context"
	"errors"
	"time"
)

// ErrRedemptionExists is returned when a redemption id is reused.
var ErrRedemptionExists = errors.New("redemption already exists")

// Store persists redemption records.
type Store interface {
	// Create inserts rec. A code collision returns apperr.ErrDuplicateCode.
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	// MarkUsed flips used to true if the record is unused and not expired at
	// the given time.
	MarkUsed(ctx context.Context, id string, at time.Time) (Record, error)
}
