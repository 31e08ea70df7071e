package chart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType classifies accounts in both the master and company charts.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

var (
	ErrMasterAccountNotFound   = errors.New("chart: master account not found")
	ErrCompanyAccountNotFound  = errors.New("chart: company account not found")
	ErrDuplicateAccountNumber  = errors.New("chart: account number already exists")
	ErrInvalidAccountType      = errors.New("chart: invalid account type")
	ErrMasterAccountReferenced = errors.New("chart: master account referenced by mappings")
)

// ValidTypes lists every allowed account type in statement order.
func ValidTypes() []AccountType {
	return []AccountType{TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense}
}

// ParseAccountType normalizes and validates a raw account type string.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, raw)
	}
}

// MasterAccount is one row of the group-level chart of accounts.
type MasterAccount struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	AccountNumber  string      `json:"account_number"`
	Name           string      `json:"name"`
	Type           AccountType `json:"account_type"`
	Category       string      `json:"category"`
	Active         bool        `json:"active"`
	CreatedAt      time.Time   `json:"created_at"`
}

// CompanyAccount is an account from a subsidiary's local chart.
type CompanyAccount struct {
	ID            uuid.UUID   `json:"id"`
	CompanyID     uuid.UUID   `json:"company_id"`
	AccountNumber string      `json:"account_number"`
	Name          string      `json:"name"`
	Type          AccountType `json:"account_type"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CreateMasterAccountInput carries the fields needed to register a master account.
type CreateMasterAccountInput struct {
	OrganizationID uuid.UUID
	AccountNumber  string
	Name           string
	Type           string
	Category       string
}

func (in CreateMasterAccountInput) Validate() error {
	if in.OrganizationID == uuid.Nil {
		return errors.New("chart: organization id is required")
	}
	if strings.TrimSpace(in.AccountNumber) == "" {
		return errors.New("chart: account number is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("chart: account name is required")
	}
	if _, err := ParseAccountType(in.Type); err != nil {
		return err
	}
	return nil
}

// MasterAccountFilter narrows ListMasterAccounts.
type MasterAccountFilter struct {
	Type            AccountType
	IncludeInactive bool
}
