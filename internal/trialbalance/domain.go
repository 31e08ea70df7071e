package trialbalance

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/chart"
)

// Snapshot is one company's trial-balance rollup for a fiscal period,
// computed on demand from mapped transactions. Totals are exact decimals;
// float64 never touches money here.
type Snapshot struct {
	CompanyID            uuid.UUID       `json:"company_id"`
	FiscalYear           int             `json:"fiscal_year"`
	FiscalPeriod         int             `json:"fiscal_period"`
	TotalAssets          decimal.Decimal `json:"total_assets"`
	TotalLiabilities     decimal.Decimal `json:"total_liabilities"`
	TotalEquity          decimal.Decimal `json:"total_equity"`
	TotalRevenue         decimal.Decimal `json:"total_revenue"`
	TotalExpenses        decimal.Decimal `json:"total_expenses"`
	NetIncome            decimal.Decimal `json:"net_income"`
	TransactionCount     int             `json:"transaction_count"`
	MappedAccountCount   int             `json:"mapped_account_count"`
	UnmappedAccountCount int             `json:"unmapped_account_count"`

	// Exposures carries the company's intercompany-tagged activity so the
	// elimination detector can pair it without touching storage.
	Exposures []Exposure `json:"exposures,omitempty"`
}

// Exposure is the net intercompany activity on one master account,
// optionally tagged with the counterparty company.
type Exposure struct {
	MasterAccountID uuid.UUID         `json:"master_account_id"`
	AccountType     chart.AccountType `json:"account_type"`
	Counterparty    *uuid.UUID        `json:"counterparty_company_id,omitempty"`
	Net             decimal.Decimal   `json:"net"`
}

// AccountActivity is one mapped master account's summed debits and credits
// for the period.
type AccountActivity struct {
	MasterAccountID uuid.UUID
	AccountType     chart.AccountType
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

// PeriodActivity is everything the aggregator reads for one company and
// period, fetched under a single read-only transaction.
type PeriodActivity struct {
	Lines                []AccountActivity
	Intercompany         []Exposure
	TransactionCount     int
	MappedAccountCount   int
	UnmappedAccountCount int
	ActiveAccountCount   int
}
