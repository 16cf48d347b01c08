package balance

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrVersionConflict is returned by a Store when the account changed since it was read.
	ErrVersionConflict = errors.New("balance version conflict")

	// ErrAlreadyApplied indicates the posting reference was already applied, so
	// the mutation must be treated as an idempotent replay.
	ErrAlreadyApplied = errors.New("posting already applied")

	// ErrAccountExists is returned by Store.Create for an existing user id.
	ErrAccountExists = errors.New("account exists")
)

const (
	// PostingCredit references a deposit id.
	PostingCredit = "credit"
	// PostingDebit references a redemption id.
	PostingDebit = "debit"
)

// Account is the per-user balance record. UsedPoints never exceeds TotalPoints.
type Account struct {
	UserID      string
	TotalPoints int64
	UsedPoints  int64
	Rank        string
	Level       int
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available returns the spendable points.
func (a Account) Available() int64 {
	return a.TotalPoints - a.UsedPoints
}

// Posting identifies one idempotent mutation of an account.
type Posting struct {
	Kind   string
	Ref    string
	UserID string
	Points int64
	At     time.Time
}

// Store defines the contract implemented by balance backends (e.g. Postgres).
//
// Apply atomically records the posting and replaces the account with next,
// provided the stored version still equals expectedVersion. It returns
// ErrAlreadyApplied if the posting exists and ErrVersionConflict if the
// account moved on; in both cases nothing is written.
type Store interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, userID string) (Account, error)
	Apply(ctx context.Context, expectedVersion int64, next Account, posting Posting) error
	HasPosting(ctx context.Context, kind, ref string) (bool, error)
	Count(ctx context.Context) (int64, error)
}
