package elimination

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind names the offsetting relationship an entry eliminates.
type Kind string

const (
	KindARAP           Kind = "ar_ap"
	KindRevenueExpense Kind = "revenue_expense"
)

// Status distinguishes auto-eliminated pairs from ambiguous ones that need
// human review. Only eliminated entries are subtracted from consolidated
// totals.
type Status string

const (
	StatusDetected   Status = "detected"
	StatusEliminated Status = "eliminated"
)

// Entry is one detected intercompany offset between two companies in a run.
// From is the side holding the receivable or revenue; To holds the payable
// or expense. Amount is the smaller of the two offsetting magnitudes.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	RunID         uuid.UUID       `json:"run_id"`
	FromCompanyID uuid.UUID       `json:"from_company_id"`
	ToCompanyID   uuid.UUID       `json:"to_company_id"`
	FromAccountID uuid.UUID       `json:"from_account_id"`
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Kind          Kind            `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	Note          string          `json:"note,omitempty"`
}

// EliminatedTotals sums the eliminated amounts by kind. Detected entries
// are excluded: they stay in the totals until a human resolves them.
func EliminatedTotals(entries []Entry) (arAP, revenueExpense decimal.Decimal) {
	for _, e := range entries {
		if e.Status != StatusEliminated {
			continue
		}
		switch e.Kind {
		case KindARAP:
			arAP = arAP.Add(e.Amount)
		case KindRevenueExpense:
			revenueExpense = revenueExpense.Add(e.Amount)
		}
	}
	return arAP, revenueExpense
}

// CountByStatus tallies entries per status.
func CountByStatus(entries []Entry, status Status) int {
	var n int
	for _, e := range entries {
		if e.Status == status {
			n++
		}
	}
	return n
}
