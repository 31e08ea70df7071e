package consol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/elimination"
	"github.com/crestline-fin/crestline/internal/shared"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

// RunStatus is the consolidation run lifecycle. Runs start running and
// always end terminal; a failed run is retried by creating a new run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

var (
	ErrRunNotFound       = errors.New("consol: run not found")
	ErrRunAlreadyFinal   = errors.New("consol: run already finalized")
	ErrPeriodLocked      = errors.New("consol: another run for this period is in progress")
	ErrDuplicateCompany  = errors.New("consol: duplicate company in run")
	ErrNoCompanies       = errors.New("consol: at least one company is required")
	ErrPeriodEndMismatch = errors.New("consol: period end date outside fiscal period")
)

// Run is one immutable consolidation execution. Totals are decimals;
// breakdowns keep the order of the requested company ids.
type Run struct {
	ID                    uuid.UUID           `json:"id"`
	OrganizationID        uuid.UUID           `json:"organization_id"`
	FiscalYear            int                 `json:"fiscal_year"`
	FiscalPeriod          int                 `json:"fiscal_period"`
	PeriodEndDate         time.Time           `json:"period_end_date"`
	RunName               string              `json:"run_name"`
	CompanyIDs            []uuid.UUID         `json:"company_ids_included"`
	Status                RunStatus           `json:"status"`
	TotalAssets           decimal.Decimal     `json:"total_assets"`
	TotalLiabilities      decimal.Decimal     `json:"total_liabilities"`
	TotalEquity           decimal.Decimal     `json:"total_equity"`
	TotalRevenue          decimal.Decimal     `json:"total_revenue"`
	TotalExpenses         decimal.Decimal     `json:"total_expenses"`
	NetIncome             decimal.Decimal     `json:"net_income"`
	EliminationCount      int                 `json:"elimination_count"`
	UnmappedAccountCount  int                 `json:"unmapped_account_count"`
	Balanced              bool                `json:"is_balanced"`
	FailureReason         string              `json:"failure_reason,omitempty"`
	ProcessingTimeSeconds float64             `json:"processing_time_seconds"`
	CreatedAt             time.Time           `json:"created_at"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`

	CompanyBreakdowns []trialbalance.Snapshot `json:"company_breakdowns,omitempty"`
	Eliminations      []elimination.Entry     `json:"eliminations,omitempty"`
}

// Terminal reports whether the run reached a final state.
func (r Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// RunInput starts a consolidation run.
type RunInput struct {
	OrganizationID uuid.UUID
	FiscalYear     int
	FiscalPeriod   int
	PeriodEndDate  time.Time
	CompanyIDs     []uuid.UUID
	RunName        string
	ActorID        uuid.UUID
	IdempotencyKey string
}

// Validate checks the input and fills derivable defaults: a period end
// date on the period's last day and a name built from the period label.
func (in *RunInput) Validate() error {
	if in.OrganizationID == uuid.Nil {
		return errors.New("consol: organization id is required")
	}
	if err := shared.ValidateFiscalPeriod(in.FiscalYear, in.FiscalPeriod); err != nil {
		return err
	}
	if len(in.CompanyIDs) == 0 {
		return ErrNoCompanies
	}
	seen := make(map[uuid.UUID]struct{}, len(in.CompanyIDs))
	for _, id := range in.CompanyIDs {
		if id == uuid.Nil {
			return errors.New("consol: company id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateCompany, id)
		}
		seen[id] = struct{}{}
	}

	start, end := shared.PeriodRange(in.FiscalYear, in.FiscalPeriod)
	if in.PeriodEndDate.IsZero() {
		in.PeriodEndDate = end.AddDate(0, 0, -1)
	} else if in.PeriodEndDate.Before(start) || !in.PeriodEndDate.Before(end) {
		return fmt.Errorf("%w: %s not in %s", ErrPeriodEndMismatch,
			in.PeriodEndDate.Format("2006-01-02"), shared.PeriodLabel(in.FiscalYear, in.FiscalPeriod))
	}
	if in.RunName == "" {
		in.RunName = "Consolidation " + shared.PeriodLabel(in.FiscalYear, in.FiscalPeriod)
	}
	return nil
}
