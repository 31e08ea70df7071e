package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes validated registry reads to the engine.
type Service struct {
	repo Repository
}

// NewService constructs the registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrganization loads one organization.
func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	if id == uuid.Nil {
		return Organization{}, ErrOrganizationNotFound
	}
	return s.repo.GetOrganization(ctx, id)
}

// GetCompany loads one company.
func (s *Service) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	if id == uuid.Nil {
		return Company{}, ErrCompanyNotFound
	}
	return s.repo.GetCompany(ctx, id)
}

// ListCompanies returns the organization's member companies ordered by code.
func (s *Service) ListCompanies(ctx context.Context, orgID uuid.UUID, includeInactive bool) ([]Company, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.repo.ListCompanies(ctx, orgID, includeInactive)
}

// ResolveRunCompanies validates that every requested company exists, is
// active, and belongs to the organization. The result preserves the input
// order so downstream breakdowns line up with the caller's company list.
func (s *Service) ResolveRunCompanies(ctx context.Context, orgID uuid.UUID, companyIDs []uuid.UUID) ([]Company, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	found, err := s.repo.CompaniesByIDs(ctx, companyIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]Company, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	resolved := make([]Company, 0, len(companyIDs))
	for _, id := range companyIDs {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCompanyNotFound, id)
		}
		if c.OrganizationID != orgID {
			return nil, fmt.Errorf("%w: %s", ErrCompanyNotInOrganization, id)
		}
		if !c.Active {
			return nil, fmt.Errorf("%w: %s", ErrCompanyInactive, id)
		}
		resolved = append(resolved, c)
	}
	return resolved, nil
}
