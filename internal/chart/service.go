package chart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateMasterAccount(ctx context.Context, in CreateMasterAccountInput) (MasterAccount, error) {
	if err := in.Validate(); err != nil {
		return MasterAccount{}, err
	}
	accType, err := ParseAccountType(in.Type)
	if err != nil {
		return MasterAccount{}, err
	}
	acc := MasterAccount{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		AccountNumber:  in.AccountNumber,
		Name:           in.Name,
		Type:           accType,
		Category:       in.Category,
	}
	return s.repo.InsertMasterAccount(ctx, acc)
}

func (s *Service) GetMasterAccount(ctx context.Context, id uuid.UUID) (MasterAccount, error) {
	if id == uuid.Nil {
		return MasterAccount{}, ErrMasterAccountNotFound
	}
	return s.repo.GetMasterAccount(ctx, id)
}

func (s *Service) ListMasterAccounts(ctx context.Context, orgID uuid.UUID, filter MasterAccountFilter) ([]MasterAccount, error) {
	if filter.Type != "" {
		if _, err := ParseAccountType(string(filter.Type)); err != nil {
			return nil, err
		}
	}
	return s.repo.ListMasterAccounts(ctx, orgID, filter)
}

// DeactivateMasterAccount retires a master account. Accounts still referenced
// by mappings cannot be retired until those mappings are removed.
func (s *Service) DeactivateMasterAccount(ctx context.Context, id uuid.UUID) error {
	refs, err := s.repo.CountMappingsForMaster(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d mappings", ErrMasterAccountReferenced, refs)
	}
	return s.repo.SetMasterAccountActive(ctx, id, false)
}

func (s *Service) GetCompanyAccount(ctx context.Context, id uuid.UUID) (CompanyAccount, error) {
	if id == uuid.Nil {
		return CompanyAccount{}, ErrCompanyAccountNotFound
	}
	return s.repo.GetCompanyAccount(ctx, id)
}

func (s *Service) ListCompanyAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error) {
	return s.repo.ListCompanyAccounts(ctx, companyID)
}

func (s *Service) ListUnmappedAccounts(ctx context.Context, companyID uuid.UUID) ([]CompanyAccount, error) {
	return s.repo.ListUnmappedAccounts(ctx, companyID)
}
