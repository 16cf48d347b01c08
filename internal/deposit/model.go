package deposit

import (
	"time"

	"github.com/smartdustbin/ecorewards/internal/policy"
)

// Record is an immutable deposit event. RequestID is the caller-supplied
// idempotency key of the physical scan.
type Record struct {
	ID        string
	RequestID string
	UserID    string
	BinID     string
	Category  policy.Category
	WeightKg  float64
	Points    int64
	CreatedAt time.Time
}

func (r Record) samePayload(other Record) bool {
	return r.UserID == other.UserID && r.BinID == other.BinID &&
		r.Category == other.Category && r.WeightKg == other.WeightKg
}

// Progress journals which halves of the deposit have been applied. It lives
// beside the deposit so the deposit row itself is never rewritten.
type Progress struct {
	DepositID      string
	BalanceApplied bool
	BinApplied     bool
	Attempts       int
	LastError      string
	UpdatedAt      time.Time
}

// Complete reports whether both the balance credit and the bin top-up landed.
func (p Progress) Complete() bool {
	return p.BalanceApplied && p.BinApplied
}

// Totals aggregates deposits for impact statistics.
type Totals struct {
	Count        int64
	Recent       int64
	Points       int64
	KgByCategory map[policy.Category]float64
}

// Page is one slice of the admin deposit listing.
type Page struct {
	Deposits   []Record
	NextCursor string
}
