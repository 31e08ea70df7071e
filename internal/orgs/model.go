package orgs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Organization owns the master chart of accounts and a set of member companies.
type Organization struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
}

// Company is a member entity whose local chart maps into the master chart.
// Currency is an informational tag only; no FX translation happens here.
type Company struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Currency       string    `json:"currency"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrOrganizationNotFound occurs when an organization lookup fails.
var ErrOrganizationNotFound = errors.New("orgs: organization not found")

// ErrCompanyNotFound occurs when a company lookup fails.
var ErrCompanyNotFound = errors.New("orgs: company not found")

// ErrCompanyNotInOrganization indicates a company owned by a different organization.
var ErrCompanyNotInOrganization = errors.New("orgs: company not in organization")

// ErrCompanyInactive indicates a deactivated company was requested for a run.
var ErrCompanyInactive = errors.New("orgs: company inactive")
