package trialbalance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/platform/db"
)

// Repository reads period activity for one company. All queries run inside
// one read-only repeatable-read transaction so counts and sums describe the
// same snapshot of the data.
type Repository interface {
	FetchPeriodActivity(ctx context.Context, companyID uuid.UUID, from, to time.Time) (PeriodActivity, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// Sums cross the wire as text so NUMERIC precision survives the trip;
// decimal.NewFromString restores exact values.
const activityQuery = `SELECT ma.id, ma.account_type, COALESCE(SUM(t.debit_amount), 0)::text, COALESCE(SUM(t.credit_amount), 0)::text
FROM transactions t
JOIN account_mappings am ON am.company_account_id = t.company_account_id
JOIN master_accounts ma ON ma.id = am.master_account_id
WHERE t.company_id=$1 AND t.date >= $2 AND t.date < $3
GROUP BY ma.id, ma.account_type
ORDER BY ma.id`

const intercompanyQuery = `SELECT ma.id, ma.account_type, t.counterparty_company_id, (COALESCE(SUM(t.debit_amount), 0) - COALESCE(SUM(t.credit_amount), 0))::text
FROM transactions t
JOIN account_mappings am ON am.company_account_id = t.company_account_id
JOIN master_accounts ma ON ma.id = am.master_account_id
WHERE t.company_id=$1 AND t.is_intercompany AND t.date >= $2 AND t.date < $3
GROUP BY ma.id, ma.account_type, t.counterparty_company_id
ORDER BY ma.id, t.counterparty_company_id`

func (r *repository) FetchPeriodActivity(ctx context.Context, companyID uuid.UUID, from, to time.Time) (PeriodActivity, error) {
	var activity PeriodActivity
	err := db.WithReadTx(ctx, r.db, func(tx pgx.Tx) error {
		lines, err := fetchLines(ctx, tx, companyID, from, to)
		if err != nil {
			return fmt.Errorf("trialbalance: fetch lines: %w", err)
		}
		activity.Lines = lines

		intercompany, err := fetchIntercompany(ctx, tx, companyID, from, to)
		if err != nil {
			return fmt.Errorf("trialbalance: fetch intercompany: %w", err)
		}
		activity.Intercompany = intercompany

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE company_id=$1 AND date >= $2 AND date < $3`,
			companyID, from, to).Scan(&activity.TransactionCount); err != nil {
			return fmt.Errorf("trialbalance: count transactions: %w", err)
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_mappings am
JOIN company_accounts ca ON ca.id = am.company_account_id
WHERE ca.company_id=$1`, companyID).Scan(&activity.MappedAccountCount); err != nil {
			return fmt.Errorf("trialbalance: count mapped accounts: %w", err)
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(DISTINCT t.company_account_id) FROM transactions t
LEFT JOIN account_mappings am ON am.company_account_id = t.company_account_id
WHERE t.company_id=$1 AND t.date >= $2 AND t.date < $3 AND am.id IS NULL`,
			companyID, from, to).Scan(&activity.UnmappedAccountCount); err != nil {
			return fmt.Errorf("trialbalance: count unmapped accounts: %w", err)
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM company_accounts WHERE company_id=$1 AND active`,
			companyID).Scan(&activity.ActiveAccountCount); err != nil {
			return fmt.Errorf("trialbalance: count active accounts: %w", err)
		}
		return nil
	})
	if err != nil {
		return PeriodActivity{}, err
	}
	return activity, nil
}

func fetchLines(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, from, to time.Time) ([]AccountActivity, error) {
	rows, err := tx.Query(ctx, activityQuery, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []AccountActivity
	for rows.Next() {
		var (
			line          AccountActivity
			debit, credit string
		)
		if err := rows.Scan(&line.MasterAccountID, &line.AccountType, &debit, &credit); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("parse debit %q: %w", debit, err)
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("parse credit %q: %w", credit, err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func fetchIntercompany(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, from, to time.Time) ([]Exposure, error) {
	rows, err := tx.Query(ctx, intercompanyQuery, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exposures []Exposure
	for rows.Next() {
		var (
			exp Exposure
			net string
		)
		if err := rows.Scan(&exp.MasterAccountID, &exp.AccountType, &exp.Counterparty, &net); err != nil {
			return nil, err
		}
		if exp.Net, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("parse net %q: %w", net, err)
		}
		exposures = append(exposures, exp)
	}
	return exposures, rows.Err()
}
