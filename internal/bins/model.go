package bins

import (
	"time"

	"github.com/smartdustbin/ecorewards/internal/policy"
)

// Bin is the durable state of one sensor-tagged bin. FillLevel stays within
// [0, 100] and Status is full whenever FillLevel reaches the threshold through
// a top-up.
type Bin struct {
	ID          string
	Location    string
	Latitude    float64
	Longitude   float64
	FillLevel   float64
	Status      policy.BinStatus
	LastEmptied time.Time
	Version     int64
	CreatedAt   time.Time
}
