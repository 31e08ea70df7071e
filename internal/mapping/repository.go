package mapping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists account mappings. The unique index on
// company_account_id is what enforces the one-active-mapping invariant,
// including under concurrent accepts.
type Repository interface {
	Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]AccountMapping, error)
	GetByCompanyAccount(ctx context.Context, companyAccountID uuid.UUID) (AccountMapping, error)
	Delete(ctx context.Context, companyAccountID uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO account_mappings (id, company_account_id, master_account_id, confidence_score, is_verified, source)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (company_account_id) DO UPDATE
SET master_account_id=EXCLUDED.master_account_id,
    confidence_score=EXCLUDED.confidence_score,
    is_verified=EXCLUDED.is_verified,
    source=EXCLUDED.source,
    created_at=NOW()
RETURNING id, company_account_id, master_account_id, confidence_score, is_verified, source, created_at`,
		m.ID, m.CompanyAccountID, m.MasterAccountID, m.ConfidenceScore, m.IsVerified, string(m.Source)).
		Scan(&m.ID, &m.CompanyAccountID, &m.MasterAccountID, &m.ConfidenceScore, &m.IsVerified, &m.Source, &m.CreatedAt)
	if err != nil {
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT m.id, m.company_account_id, m.master_account_id, m.confidence_score, m.is_verified, m.source, m.created_at
FROM account_mappings m
JOIN company_accounts ca ON ca.id = m.company_account_id
WHERE ca.company_id=$1
ORDER BY ca.account_number`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []AccountMapping
	for rows.Next() {
		var (
			m       AccountMapping
			created pgtype.Timestamptz
		)
		if err := rows.Scan(&m.ID, &m.CompanyAccountID, &m.MasterAccountID, &m.ConfidenceScore, &m.IsVerified, &m.Source, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = created.Time
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *repository) GetByCompanyAccount(ctx context.Context, companyAccountID uuid.UUID) (AccountMapping, error) {
	var (
		m       AccountMapping
		created pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `SELECT id, company_account_id, master_account_id, confidence_score, is_verified, source, created_at
FROM account_mappings WHERE company_account_id=$1`, companyAccountID).
		Scan(&m.ID, &m.CompanyAccountID, &m.MasterAccountID, &m.ConfidenceScore, &m.IsVerified, &m.Source, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	m.CreatedAt = created.Time
	return m, nil
}

func (r *repository) Delete(ctx context.Context, companyAccountID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM account_mappings WHERE company_account_id=$1`, companyAccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMappingNotFound
	}
	return nil
}
