package trialbalance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/shared"
)

// Service computes trial-balance snapshots. Aggregation is a pure function
// of the period's stored activity: same data in, same snapshot out.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Aggregate rolls one company's mapped transactions for the period into a
// snapshot. Debit-natural accounts (assets, expenses) accumulate
// debit-credit; credit-natural accounts (liabilities, equity, revenue)
// accumulate credit-debit. Equity includes the period's net income so the
// accounting identity can close. A company with no mapped accounts yields a
// zero snapshot with every active account reported unmapped.
func (s *Service) Aggregate(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (Snapshot, error) {
	if companyID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("trialbalance: company id is required")
	}
	if err := shared.ValidateFiscalPeriod(fiscalYear, fiscalPeriod); err != nil {
		return Snapshot{}, err
	}
	from, to := shared.PeriodRange(fiscalYear, fiscalPeriod)

	activity, err := s.repo.FetchPeriodActivity(ctx, companyID, from, to)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		CompanyID:            companyID,
		FiscalYear:           fiscalYear,
		FiscalPeriod:         fiscalPeriod,
		TransactionCount:     activity.TransactionCount,
		MappedAccountCount:   activity.MappedAccountCount,
		UnmappedAccountCount: activity.UnmappedAccountCount,
	}

	if activity.MappedAccountCount == 0 {
		snap.UnmappedAccountCount = activity.ActiveAccountCount
		return snap, nil
	}

	for _, line := range activity.Lines {
		debitNet := line.Debit.Sub(line.Credit)
		creditNet := line.Credit.Sub(line.Debit)
		switch line.AccountType {
		case chart.TypeAsset:
			snap.TotalAssets = snap.TotalAssets.Add(debitNet)
		case chart.TypeExpense:
			snap.TotalExpenses = snap.TotalExpenses.Add(debitNet)
		case chart.TypeLiability:
			snap.TotalLiabilities = snap.TotalLiabilities.Add(creditNet)
		case chart.TypeEquity:
			snap.TotalEquity = snap.TotalEquity.Add(creditNet)
		case chart.TypeRevenue:
			snap.TotalRevenue = snap.TotalRevenue.Add(creditNet)
		default:
			return Snapshot{}, fmt.Errorf("%w: %q", chart.ErrInvalidAccountType, line.AccountType)
		}
	}

	snap.NetIncome = snap.TotalRevenue.Sub(snap.TotalExpenses)
	snap.TotalEquity = snap.TotalEquity.Add(snap.NetIncome)
	snap.Exposures = activity.Intercompany
	return snap, nil
}

// Balanced reports whether the snapshot satisfies the accounting identity.
// A difference at or above the tolerance counts as out of balance.
func Balanced(snap Snapshot, tolerance decimal.Decimal) bool {
	diff := snap.TotalAssets.Sub(snap.TotalLiabilities.Add(snap.TotalEquity))
	return diff.Abs().LessThan(tolerance)
}
