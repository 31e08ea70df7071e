package consol

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/elimination"
	"github.com/crestline-fin/crestline/internal/platform/db"
	"github.com/crestline-fin/crestline/internal/shared"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

// Repository persists consolidation runs. A run row is written once in
// running state and finalized exactly once; the status guard on the update
// is what makes completed runs immutable.
type Repository interface {
	InsertRun(ctx context.Context, run Run) error
	FinalizeRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	ListRuns(ctx context.Context, orgID uuid.UUID, p shared.Pagination) ([]Run, int, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) InsertRun(ctx context.Context, run Run) error {
	_, err := r.db.Exec(ctx, `INSERT INTO consolidation_runs
(id, organization_id, fiscal_year, fiscal_period, period_end_date, run_name, company_ids, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID, run.OrganizationID, run.FiscalYear, run.FiscalPeriod, run.PeriodEndDate,
		run.RunName, run.CompanyIDs, string(run.Status), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("consol: insert run: %w", err)
	}
	return nil
}

func (r *repository) FinalizeRun(ctx context.Context, run Run) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE consolidation_runs SET
status=$2, total_assets=$3, total_liabilities=$4, total_equity=$5, total_revenue=$6,
total_expenses=$7, net_income=$8, elimination_count=$9, unmapped_account_count=$10,
is_balanced=$11, failure_reason=NULLIF($12, ''), processing_time_seconds=$13, completed_at=$14
WHERE id=$1 AND status='running'`,
			run.ID, string(run.Status), run.TotalAssets.String(), run.TotalLiabilities.String(),
			run.TotalEquity.String(), run.TotalRevenue.String(), run.TotalExpenses.String(),
			run.NetIncome.String(), run.EliminationCount, run.UnmappedAccountCount, run.Balanced,
			run.FailureReason, run.ProcessingTimeSeconds, run.CompletedAt)
		if err != nil {
			return fmt.Errorf("consol: finalize run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM consolidation_runs WHERE id=$1`, run.ID).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRunNotFound
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrRunAlreadyFinal, status)
		}

		for i, snap := range run.CompanyBreakdowns {
			if _, err := tx.Exec(ctx, `INSERT INTO run_breakdowns
(run_id, position, company_id, total_assets, total_liabilities, total_equity, total_revenue,
 total_expenses, net_income, transaction_count, mapped_account_count, unmapped_account_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				run.ID, i, snap.CompanyID, snap.TotalAssets.String(), snap.TotalLiabilities.String(),
				snap.TotalEquity.String(), snap.TotalRevenue.String(), snap.TotalExpenses.String(),
				snap.NetIncome.String(), snap.TransactionCount, snap.MappedAccountCount,
				snap.UnmappedAccountCount); err != nil {
				return fmt.Errorf("consol: insert breakdown %d: %w", i, err)
			}
		}

		for i, entry := range run.Eliminations {
			if _, err := tx.Exec(ctx, `INSERT INTO elimination_entries
(id, run_id, position, from_company_id, to_company_id, from_account_id, to_account_id, entry_type, amount, status, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''))`,
				entry.ID, run.ID, i, entry.FromCompanyID, entry.ToCompanyID,
				entry.FromAccountID, entry.ToAccountID, string(entry.Kind),
				entry.Amount.String(), string(entry.Status), entry.Note); err != nil {
				return fmt.Errorf("consol: insert elimination %d: %w", i, err)
			}
		}
		return nil
	})
}

const runColumns = `id, organization_id, fiscal_year, fiscal_period, period_end_date, run_name, company_ids, status,
total_assets::text, total_liabilities::text, total_equity::text, total_revenue::text,
total_expenses::text, net_income::text, elimination_count, unmapped_account_count, is_balanced,
COALESCE(failure_reason, ''), processing_time_seconds, created_at, completed_at`

func (r *repository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM consolidation_runs WHERE id=$1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}

	rows, err := r.db.Query(ctx, `SELECT company_id, total_assets::text, total_liabilities::text, total_equity::text,
total_revenue::text, total_expenses::text, net_income::text, transaction_count, mapped_account_count, unmapped_account_count
FROM run_breakdowns WHERE run_id=$1 ORDER BY position`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		snap := trialbalance.Snapshot{FiscalYear: run.FiscalYear, FiscalPeriod: run.FiscalPeriod}
		var assets, liabilities, equity, revenue, expenses, netIncome string
		if err := rows.Scan(&snap.CompanyID, &assets, &liabilities, &equity, &revenue, &expenses,
			&netIncome, &snap.TransactionCount, &snap.MappedAccountCount, &snap.UnmappedAccountCount); err != nil {
			return Run{}, err
		}
		if err := assignDecimals(map[*decimal.Decimal]string{
			&snap.TotalAssets: assets, &snap.TotalLiabilities: liabilities, &snap.TotalEquity: equity,
			&snap.TotalRevenue: revenue, &snap.TotalExpenses: expenses, &snap.NetIncome: netIncome,
		}); err != nil {
			return Run{}, err
		}
		run.CompanyBreakdowns = append(run.CompanyBreakdowns, snap)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	entryRows, err := r.db.Query(ctx, `SELECT id, from_company_id, to_company_id, from_account_id, to_account_id,
entry_type, amount::text, status, COALESCE(note, '')
FROM elimination_entries WHERE run_id=$1 ORDER BY position`, id)
	if err != nil {
		return Run{}, err
	}
	defer entryRows.Close()
	for entryRows.Next() {
		entry := elimination.Entry{RunID: id}
		var amount string
		if err := entryRows.Scan(&entry.ID, &entry.FromCompanyID, &entry.ToCompanyID,
			&entry.FromAccountID, &entry.ToAccountID, &entry.Kind, &amount, &entry.Status, &entry.Note); err != nil {
			return Run{}, err
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return Run{}, fmt.Errorf("consol: parse elimination amount %q: %w", amount, err)
		}
		run.Eliminations = append(run.Eliminations, entry)
	}
	if err := entryRows.Err(); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (r *repository) ListRuns(ctx context.Context, orgID uuid.UUID, p shared.Pagination) ([]Run, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM consolidation_runs WHERE organization_id=$1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM consolidation_runs
WHERE organization_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		orgID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run                  Run
		periodEnd            pgtype.Date
		createdAt, completed pgtype.Timestamptz
		assets, liabilities, equity, revenue, expenses, netIncome string
	)
	err := row.Scan(&run.ID, &run.OrganizationID, &run.FiscalYear, &run.FiscalPeriod, &periodEnd,
		&run.RunName, &run.CompanyIDs, &run.Status, &assets, &liabilities, &equity, &revenue,
		&expenses, &netIncome, &run.EliminationCount, &run.UnmappedAccountCount, &run.Balanced,
		&run.FailureReason, &run.ProcessingTimeSeconds, &createdAt, &completed)
	if err != nil {
		return Run{}, err
	}
	if err := assignDecimals(map[*decimal.Decimal]string{
		&run.TotalAssets: assets, &run.TotalLiabilities: liabilities, &run.TotalEquity: equity,
		&run.TotalRevenue: revenue, &run.TotalExpenses: expenses, &run.NetIncome: netIncome,
	}); err != nil {
		return Run{}, err
	}
	run.PeriodEndDate = periodEnd.Time
	run.CreatedAt = createdAt.Time
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return run, nil
}

func assignDecimals(fields map[*decimal.Decimal]string) error {
	for dst, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("consol: parse amount %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}
