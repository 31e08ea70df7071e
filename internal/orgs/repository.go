package orgs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides registry reads for organizations and companies.
type Repository interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error)
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	ListCompanies(ctx context.Context, orgID uuid.UUID, includeInactive bool) ([]Company, error)
	CompaniesByIDs(ctx context.Context, ids []uuid.UUID) ([]Company, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed registry repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	const query = `SELECT id, name, base_currency, created_at FROM organizations WHERE id = $1`
	var org Organization
	var createdAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name, &org.BaseCurrency, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrOrganizationNotFound
		}
		return Organization{}, err
	}
	if createdAt.Valid {
		org.CreatedAt = createdAt.Time
	}
	return org, nil
}

func (r *repository) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	const query = `SELECT id, organization_id, code, name, currency, is_active, created_at FROM companies WHERE id = $1`
	var c Company
	var createdAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.OrganizationID, &c.Code, &c.Name, &c.Currency, &c.Active, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrCompanyNotFound
		}
		return Company{}, err
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	return c, nil
}

func (r *repository) ListCompanies(ctx context.Context, orgID uuid.UUID, includeInactive bool) ([]Company, error) {
	query := `SELECT id, organization_id, code, name, currency, is_active, created_at FROM companies WHERE organization_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY code`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompanies(rows)
}

func (r *repository) CompaniesByIDs(ctx context.Context, ids []uuid.UUID) ([]Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, organization_id, code, name, currency, is_active, created_at FROM companies WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompanies(rows)
}

func scanCompanies(rows pgx.Rows) ([]Company, error) {
	var companies []Company
	for rows.Next() {
		var c Company
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Code, &c.Name, &c.Currency, &c.Active, &createdAt); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			c.CreatedAt = createdAt.Time
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}
