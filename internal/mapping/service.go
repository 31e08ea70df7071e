package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/shared"
)

// AccountReader is the slice of the chart registry the store needs to
// validate an accept call.
type AccountReader interface {
	GetCompanyAccount(ctx context.Context, id uuid.UUID) (chart.CompanyAccount, error)
	GetMasterAccount(ctx context.Context, id uuid.UUID) (chart.MasterAccount, error)
}

// AcceptInput carries one mapping acceptance.
type AcceptInput struct {
	CompanyAccountID uuid.UUID
	MasterAccountID  uuid.UUID
	ConfidenceScore  float64
	Source           Source
	ActorID          uuid.UUID
}

func (in AcceptInput) Validate() error {
	if in.CompanyAccountID == uuid.Nil {
		return errors.New("mapping: company account id is required")
	}
	if in.MasterAccountID == uuid.Nil {
		return errors.New("mapping: master account id is required")
	}
	if _, err := ParseSource(string(in.Source)); err != nil {
		return err
	}
	if in.ConfidenceScore < 0 || in.ConfidenceScore > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// AcceptResult is the stored mapping plus any non-blocking warnings.
type AcceptResult struct {
	Mapping      AccountMapping `json:"mapping"`
	TypeMismatch bool           `json:"type_mismatch"`
}

// Service is the mapping store: it owns accept/get/remove on persisted
// mappings. Suggestion generation lives in the Resolver.
type Service struct {
	repo   Repository
	charts AccountReader
	audit  *shared.AuditLogger
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(repo Repository, charts AccountReader, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		charts: charts,
		audit:  audit,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides time lookups in tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Accept stores a mapping for a company account, replacing any previous
// one. Manual accepts are always verified with full confidence. A type
// mismatch between the two accounts is reported, not rejected.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (AcceptResult, error) {
	if err := in.Validate(); err != nil {
		return AcceptResult{}, err
	}
	companyAcc, err := s.charts.GetCompanyAccount(ctx, in.CompanyAccountID)
	if err != nil {
		return AcceptResult{}, err
	}
	masterAcc, err := s.charts.GetMasterAccount(ctx, in.MasterAccountID)
	if err != nil {
		return AcceptResult{}, err
	}
	if !masterAcc.Active {
		return AcceptResult{}, fmt.Errorf("%w: %s", ErrMasterAccountInactive, masterAcc.AccountNumber)
	}

	m := AccountMapping{
		ID:               uuid.New(),
		CompanyAccountID: in.CompanyAccountID,
		MasterAccountID:  in.MasterAccountID,
		ConfidenceScore:  in.ConfidenceScore,
		Source:           in.Source,
	}
	if in.Source == SourceManual {
		m.ConfidenceScore = 1.0
		m.IsVerified = true
	}

	saved, err := s.repo.Upsert(ctx, m)
	if err != nil {
		return AcceptResult{}, err
	}

	mismatch := companyAcc.Type != masterAcc.Type
	if mismatch {
		s.log().Warn("mapping accepted across account types",
			"company_account", companyAcc.AccountNumber,
			"company_account_type", companyAcc.Type,
			"master_account", masterAcc.AccountNumber,
			"master_account_type", masterAcc.Type)
	}
	s.recordAudit(ctx, in.ActorID, "mapping.accept", saved, map[string]any{
		"company_account": companyAcc.AccountNumber,
		"master_account":  masterAcc.AccountNumber,
		"confidence":      saved.ConfidenceScore,
		"source":          saved.Source,
		"type_mismatch":   mismatch,
	})
	return AcceptResult{Mapping: saved, TypeMismatch: mismatch}, nil
}

// Get lists the company's mappings ordered by company account number.
func (s *Service) Get(ctx context.Context, companyID uuid.UUID) ([]AccountMapping, error) {
	return s.repo.ListByCompany(ctx, companyID)
}

// Remove unmaps one company account.
func (s *Service) Remove(ctx context.Context, companyAccountID, actorID uuid.UUID) error {
	existing, err := s.repo.GetByCompanyAccount(ctx, companyAccountID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, companyAccountID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "mapping.remove", existing, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, m AccountMapping, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account_mapping",
		EntityID: m.ID.String(),
		Meta:     meta,
		At:       s.clock(),
	}); err != nil {
		s.log().Warn("audit record failed", "action", action, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
