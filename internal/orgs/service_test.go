package orgs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type stubRepo struct {
	org       Organization
	orgErr    error
	companies []Company
}

func (s *stubRepo) GetOrganization(_ context.Context, id uuid.UUID) (Organization, error) {
	if s.orgErr != nil {
		return Organization{}, s.orgErr
	}
	return s.org, nil
}

func (s *stubRepo) GetCompany(_ context.Context, id uuid.UUID) (Company, error) {
	for _, c := range s.companies {
		if c.ID == id {
			return c, nil
		}
	}
	return Company{}, ErrCompanyNotFound
}

func (s *stubRepo) ListCompanies(_ context.Context, orgID uuid.UUID, includeInactive bool) ([]Company, error) {
	var out []Company
	for _, c := range s.companies {
		if c.OrganizationID != orgID {
			continue
		}
		if !includeInactive && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *stubRepo) CompaniesByIDs(_ context.Context, ids []uuid.UUID) ([]Company, error) {
	var out []Company
	for _, id := range ids {
		for _, c := range s.companies {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func TestResolveRunCompaniesPreservesOrder(t *testing.T) {
	orgID := uuid.New()
	a := Company{ID: uuid.New(), OrganizationID: orgID, Code: "ALPHA", Active: true}
	b := Company{ID: uuid.New(), OrganizationID: orgID, Code: "BETA", Active: true}
	repo := &stubRepo{org: Organization{ID: orgID}, companies: []Company{a, b}}
	svc := NewService(repo)

	resolved, err := svc.ResolveRunCompanies(context.Background(), orgID, []uuid.UUID{b.ID, a.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 companies, got %d", len(resolved))
	}
	if resolved[0].ID != b.ID || resolved[1].ID != a.ID {
		t.Fatalf("input order not preserved: %v", resolved)
	}
}

func TestResolveRunCompaniesRejectsForeignCompany(t *testing.T) {
	orgID := uuid.New()
	foreign := Company{ID: uuid.New(), OrganizationID: uuid.New(), Active: true}
	repo := &stubRepo{org: Organization{ID: orgID}, companies: []Company{foreign}}
	svc := NewService(repo)

	_, err := svc.ResolveRunCompanies(context.Background(), orgID, []uuid.UUID{foreign.ID})
	if !errors.Is(err, ErrCompanyNotInOrganization) {
		t.Fatalf("expected ErrCompanyNotInOrganization, got %v", err)
	}
}

func TestResolveRunCompaniesRejectsUnknownAndInactive(t *testing.T) {
	orgID := uuid.New()
	inactive := Company{ID: uuid.New(), OrganizationID: orgID, Active: false}
	repo := &stubRepo{org: Organization{ID: orgID}, companies: []Company{inactive}}
	svc := NewService(repo)

	if _, err := svc.ResolveRunCompanies(context.Background(), orgID, []uuid.UUID{uuid.New()}); !errors.Is(err, ErrCompanyNotFound) {
		t.Fatalf("expected ErrCompanyNotFound, got %v", err)
	}
	if _, err := svc.ResolveRunCompanies(context.Background(), orgID, []uuid.UUID{inactive.ID}); !errors.Is(err, ErrCompanyInactive) {
		t.Fatalf("expected ErrCompanyInactive, got %v", err)
	}
}

func TestGetOrganizationPropagatesNotFound(t *testing.T) {
	repo := &stubRepo{orgErr: ErrOrganizationNotFound}
	svc := NewService(repo)
	if _, err := svc.GetOrganization(context.Background(), uuid.New()); !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}
