package redemption

import "time"

// Record is an issued redemption. Used flips to true exactly once.
type Record struct {
	ID          string
	UserID      string
	OfferID     string
	PartnerName string
	PointsSpent int64
	Code        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      time.Time
}

// Expired reports whether the record can no longer be used at t.
func (r Record) Expired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}
