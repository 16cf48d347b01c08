// Package impact derives environmental statistics and the admin dashboard
// from recorded deposits.
package impact

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/bins"
	"github.com/smartdustbin/ecorewards/internal/deposit"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

// RecentWindow is the lookback of the dashboard's recent deposit count.
const RecentWindow = 7 * 24 * time.Hour

// PaperKgPerTree is the recycled paper mass that saves one tree.
const PaperKgPerTree = 80

// co2 saved per recycled kg.
var co2PerKg = map[policy.Category]decimal.Decimal{
	policy.CategoryPlastic: decimal.RequireFromString("2.5"),
	policy.CategoryPaper:   decimal.RequireFromString("1.8"),
	policy.CategoryMetal:   decimal.RequireFromString("4.5"),
}

// Summary is the environmental impact of a set of deposits.
type Summary struct {
	KgByCategory map[policy.Category]float64 `json:"kg_by_category"`
	OrganicKg    float64                     `json:"organic_kg"`
	RecyclableKg float64                     `json:"recyclable_kg"`
	CO2SavedKg   float64                     `json:"co2_saved_kg"`
	TreesSaved   float64                     `json:"trees_saved"`
}

// Summarize converts per-category weights into impact figures rounded to two
// decimals.
func Summarize(kgByCategory map[policy.Category]float64) Summary {
	s := Summary{KgByCategory: make(map[policy.Category]float64, len(policy.Categories))}
	var (
		recyclable = decimal.Zero
		co2        = decimal.Zero
	)
	for _, c := range policy.Categories {
		kg := decimal.NewFromFloat(kgByCategory[c])
		s.KgByCategory[c] = kg.Round(2).InexactFloat64()
		if c.Recyclable() {
			recyclable = recyclable.Add(kg)
		}
		if rate, ok := co2PerKg[c]; ok {
			co2 = co2.Add(kg.Mul(rate))
		}
	}
	s.OrganicKg = s.KgByCategory[policy.CategoryOrganic]
	s.RecyclableKg = recyclable.Round(2).InexactFloat64()
	s.CO2SavedKg = co2.Round(2).InexactFloat64()
	s.TreesSaved = decimal.NewFromFloat(kgByCategory[policy.CategoryPaper]).
		Div(decimal.NewFromInt(PaperKgPerTree)).Round(2).InexactFloat64()
	return s
}

// UserStats is the profile view of one user's contribution.
type UserStats struct {
	UserID          string  `json:"user_id"`
	TotalPoints     int64   `json:"total_points"`
	UsedPoints      int64   `json:"used_points"`
	AvailablePoints int64   `json:"available_points"`
	Rank            string  `json:"rank"`
	Level           int     `json:"level"`
	Deposits        int64   `json:"deposits"`
	Summary         Summary `json:"impact"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	Users          int64                    `json:"users"`
	Bins           int                      `json:"bins"`
	BinsByStatus   map[policy.BinStatus]int `json:"bins_by_status"`
	Deposits       int64                    `json:"deposits"`
	RecentDeposits int64                    `json:"recent_deposits"`
	PointsAwarded  int64                    `json:"points_awarded"`
	Summary        Summary                  `json:"impact"`
}

// Accounts reads balances.
type Accounts interface {
	Get(ctx context.Context, userID string) (balance.Account, error)
	Count(ctx context.Context) (int64, error)
}

// Deposits aggregates deposit history.
type Deposits interface {
	Totals(ctx context.Context, userID string, since time.Time) (deposit.Totals, error)
}

// Bins lists bins.
type Bins interface {
	List(ctx context.Context, status string) ([]bins.Bin, error)
}

// Service computes statistics from fresh reads; nothing is cached.
type Service struct {
	accounts Accounts
	deposits Deposits
	bins     Bins
	now      func() time.Time
}

// NewService wires the statistics service.
func NewService(accounts Accounts, deposits Deposits, bins Bins) *Service {
	return &Service{
		accounts: accounts,
		deposits: deposits,
		bins:     bins,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UserStats returns balance and impact figures for userID.
func (s *Service) UserStats(ctx context.Context, userID string) (UserStats, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	totals, err := s.deposits.Totals(ctx, userID, s.now().Add(-RecentWindow))
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{
		UserID:          account.UserID,
		TotalPoints:     account.TotalPoints,
		UsedPoints:      account.UsedPoints,
		AvailablePoints: account.Available(),
		Rank:            account.Rank,
		Level:           account.Level,
		Deposits:        totals.Count,
		Summary:         Summarize(totals.KgByCategory),
	}, nil
}

// Dashboard returns the admin overview.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	users, err := s.accounts.Count(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	all, err := s.bins.List(ctx, "")
	if err != nil {
		return Dashboard{}, err
	}
	totals, err := s.deposits.Totals(ctx, "", s.now().Add(-RecentWindow))
	if err != nil {
		return Dashboard{}, err
	}

	byStatus := map[policy.BinStatus]int{
		policy.BinActive:      0,
		policy.BinFull:        0,
		policy.BinMaintenance: 0,
	}
	for _, b := range all {
		byStatus[b.Status]++
	}
	return Dashboard{
		Users:          users,
		Bins:           len(all),
		BinsByStatus:   byStatus,
		Deposits:       totals.Count,
		RecentDeposits: totals.Recent,
		PointsAwarded:  totals.Points,
		Summary:        Summarize(totals.KgByCategory),
	}, nil
}
