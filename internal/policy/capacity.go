package policy

import (
	"github.com/shopspring/decimal"
)

// BinStatus is the operational status of a bin.
type BinStatus string

const (
	BinActive      BinStatus = "active"
	BinFull        BinStatus = "full"
	BinMaintenance BinStatus = "maintenance"
)

const (
	// FillPercentPerKg is the share of bin capacity consumed per deposited kilogram.
	FillPercentPerKg = 2
	// FullThreshold is the fill level at or above which a bin is full.
	FullThreshold = 90
	// MaxFill and MinFill bound the fill level.
	MaxFill = 100
	MinFill = 0
)

// ParseBinStatus validates a raw status string.
func ParseBinStatus(raw string) (BinStatus, bool) {
	switch s := BinStatus(raw); s {
	case BinActive, BinFull, BinMaintenance:
		return s, true
	default:
		return "", false
	}
}

// ClampFill bounds a fill level to [MinFill, MaxFill].
func ClampFill(fill float64) float64 {
	switch {
	case fill < MinFill:
		return MinFill
	case fill > MaxFill:
		return MaxFill
	default:
		return fill
	}
}

// TopUp returns the fill level and status after depositing weightKg. A bin
// reaching FullThreshold becomes full; otherwise the status is unchanged, so a
// bin under maintenance stays under maintenance.
func TopUp(fillLevel, weightKg float64, status BinStatus) (float64, BinStatus) {
	added := decimal.NewFromFloat(weightKg).Mul(decimal.NewFromInt(FillPercentPerKg))
	next := decimal.NewFromFloat(ClampFill(fillLevel)).Add(added)
	if next.GreaterThan(decimal.NewFromInt(MaxFill)) {
		next = decimal.NewFromInt(MaxFill)
	}
	newFill := ClampFill(next.InexactFloat64())
	if next.GreaterThanOrEqual(decimal.NewFromInt(FullThreshold)) {
		return newFill, BinFull
	}
	return newFill, status
}

// Normalize enforces the full-status invariant when a status is assigned
// outside of a top-up: any bin at or above the threshold is full, and a full
// bin below the threshold is active again.
func Normalize(fillLevel float64, status BinStatus) BinStatus {
	full := fillLevel >= FullThreshold
	switch {
	case full:
		return BinFull
	case status == BinFull:
		return BinActive
	default:
		return status
	}
}
