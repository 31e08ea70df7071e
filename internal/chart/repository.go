package chart

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestline-fin/crestline/internal/orgs"
)

// Repository encapsulates DB operations for master and company charts.
type Repository interface {
	InsertMasterAccount(ctx context.Context, acc MasterAccount) (MasterAccount, error)
	GetMasterAccount(ctx context.Context, id uuid.UUID) (MasterAccount, error)
	ListMasterAccounts(ctx context.Context, orgID uuid.UUID, filter MasterAccountFilter) ([]MasterAccount, error)
	MasterAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]MasterAccount, error)
	SetMasterAccountActive(ctx context.Context, id uuid.UUID, active bool) error
	CountMappingsForMaster(ctx context.Context, masterAccountID uuid.UUID) (int, error)

	GetCompanyAccount(ctx context.Context, id uuid.UUID) (CompanyAccount, error)
	ListCompanyAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error)
	ListUnmappedAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const masterAccountColumns = `id, organization_id, account_number, name, account_type, category, active, created_at`

func (r *repository) InsertMasterAccount(ctx context.Context, acc MasterAccount) (MasterAccount, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO master_accounts (id, organization_id, account_number, name, account_type, category, active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE)
RETURNING `+masterAccountColumns,
		acc.ID, acc.OrganizationID, acc.AccountNumber, acc.Name, string(acc.Type), acc.Category).
		Scan(&acc.ID, &acc.OrganizationID, &acc.AccountNumber, &acc.Name, &acc.Type, &acc.Category, &acc.Active, &acc.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.ConstraintName == "uq_master_accounts_org_number" {
				return MasterAccount{}, ErrDuplicateAccountNumber
			}
			if pgErr.Code == "23503" {
				return MasterAccount{}, orgs.ErrOrganizationNotFound
			}
		}
		return MasterAccount{}, err
	}
	return acc, nil
}

func (r *repository) GetMasterAccount(ctx context.Context, id uuid.UUID) (MasterAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT `+masterAccountColumns+` FROM master_accounts WHERE id=$1`, id)
	acc, err := scanMasterAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MasterAccount{}, ErrMasterAccountNotFound
		}
		return MasterAccount{}, err
	}
	return acc, nil
}

func (r *repository) ListMasterAccounts(ctx context.Context, orgID uuid.UUID, filter MasterAccountFilter) ([]MasterAccount, error) {
	query := `SELECT ` + masterAccountColumns + ` FROM master_accounts WHERE organization_id=$1`
	args := []any{orgID}
	argCount := 2
	if !filter.IncludeInactive {
		query += ` AND active`
	}
	if filter.Type != "" {
		query += ` AND account_type=$` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
		argCount++
	}
	query += ` ORDER BY account_number`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMasterAccounts(rows)
}

func (r *repository) MasterAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]MasterAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+masterAccountColumns+` FROM master_accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMasterAccounts(rows)
}

func (r *repository) SetMasterAccountActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE master_accounts SET active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMasterAccountNotFound
	}
	return nil
}

func (r *repository) CountMappingsForMaster(ctx context.Context, masterAccountID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM account_mappings WHERE master_account_id=$1`, masterAccountID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

const companyAccountColumns = `id, company_id, account_number, name, account_type, active, created_at`

func (r *repository) GetCompanyAccount(ctx context.Context, id uuid.UUID) (CompanyAccount, error) {
	var (
		acc     CompanyAccount
		created pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `SELECT `+companyAccountColumns+` FROM company_accounts WHERE id=$1`, id).
		Scan(&acc.ID, &acc.CompanyID, &acc.AccountNumber, &acc.Name, &acc.Type, &acc.Active, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyAccount{}, ErrCompanyAccountNotFound
		}
		return CompanyAccount{}, err
	}
	acc.CreatedAt = created.Time
	return acc, nil
}

func (r *repository) ListCompanyAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+companyAccountColumns+` FROM company_accounts WHERE company_id=$1 AND active ORDER BY account_number`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCompanyAccounts(rows)
}

// ListUnmappedAccounts returns active company accounts with no mapping row.
func (r *repository) ListUnmappedAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+prefixColumns("ca", companyAccountColumns)+`
FROM company_accounts ca
LEFT JOIN account_mappings am ON am.company_account_id = ca.id
WHERE ca.company_id=$1 AND ca.active AND am.id IS NULL
ORDER BY ca.account_number`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCompanyAccounts(rows)
}

func scanMasterAccount(row pgx.Row) (MasterAccount, error) {
	var (
		acc     MasterAccount
		created pgtype.Timestamptz
	)
	err := row.Scan(&acc.ID, &acc.OrganizationID, &acc.AccountNumber, &acc.Name, &acc.Type, &acc.Category, &acc.Active, &created)
	if err != nil {
		return MasterAccount{}, err
	}
	acc.CreatedAt = created.Time
	return acc, nil
}

func collectMasterAccounts(rows pgx.Rows) ([]MasterAccount, error) {
	var accounts []MasterAccount
	for rows.Next() {
		acc, err := scanMasterAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func collectCompanyAccounts(rows pgx.Rows) ([]CompanyAccount, error) {
	var accounts []CompanyAccount
	for rows.Next() {
		var (
			acc     CompanyAccount
			created pgtype.Timestamptz
		)
		if err := rows.Scan(&acc.ID, &acc.CompanyID, &acc.AccountNumber, &acc.Name, &acc.Type, &acc.Active, &created); err != nil {
			return nil, err
		}
		acc.CreatedAt = created.Time
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
