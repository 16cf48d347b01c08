package deposit

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateRequest is returned by Append when the request id was already
// recorded. The existing record is returned with it.
var ErrDuplicateRequest = errors.New("deposit request already recorded")

// Store persists deposit records and their saga progress.
type Store interface {
	// Append writes rec and an empty progress entry atomically.
	Append(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	GetByRequest(ctx context.Context, requestID string) (Record, error)
	Progress(ctx context.Context, depositID string) (Progress, error)
	SaveProgress(ctx context.Context, p Progress) error
	// Pending returns deposits with an incomplete saga, oldest first.
	Pending(ctx context.Context, limit int) ([]Record, error)
	// ListByUser returns the user's deposits, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	// List pages through all deposits newest first, starting after cursor.
	List(ctx context.Context, cursor string, limit int) (Page, error)
	// Totals aggregates deposits of userID, or of everyone when userID is
	// empty. Recent counts deposits created at or after since.
	Totals(ctx context.Context, userID string, since time.Time) (Totals, error)
}
