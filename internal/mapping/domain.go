package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source records who produced a mapping.
type Source string

const (
	SourceAI     Source = "ai"
	SourceManual Source = "manual"
)

// Similarity buckets the name-similarity score for human review.
type Similarity string

const (
	SimilarityLow    Similarity = "low"
	SimilarityMedium Similarity = "medium"
	SimilarityHigh   Similarity = "high"
)

var (
	ErrMappingNotFound       = errors.New("mapping: not found")
	ErrInvalidSource         = errors.New("mapping: invalid source")
	ErrInvalidConfidence     = errors.New("mapping: confidence must be between 0 and 1")
	ErrInvalidThreshold      = errors.New("mapping: threshold must be between 0 and 1")
	ErrMasterAccountInactive = errors.New("mapping: master account is inactive")
	ErrEmptyMasterChart      = errors.New("mapping: organization has no active master accounts")
)

// AccountMapping links one company account to a master account. A company
// account carries at most one mapping at a time; accepting a new one
// replaces the old.
type AccountMapping struct {
	ID               uuid.UUID `json:"id"`
	CompanyAccountID uuid.UUID `json:"company_account_id"`
	MasterAccountID  uuid.UUID `json:"master_account_id"`
	ConfidenceScore  float64   `json:"confidence_score"`
	IsVerified       bool      `json:"is_verified"`
	Source           Source    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`
}

// MappingSuggestion is a transient match proposal. It is never persisted;
// accepting it creates an AccountMapping.
type MappingSuggestion struct {
	CompanyAccountID   uuid.UUID  `json:"company_account_id"`
	MasterAccountID    uuid.UUID  `json:"master_account_id"`
	ConfidenceScore    float64    `json:"confidence_score"`
	AccountTypeMatch   bool       `json:"account_type_match"`
	NameSimilarity     Similarity `json:"name_similarity"`
	Reasoning          string     `json:"reasoning"`
	AlternativeMatches []string   `json:"alternative_matches"`
}

// ParseSource validates a raw mapping source.
func ParseSource(raw string) (Source, error) {
	switch Source(raw) {
	case SourceAI, SourceManual:
		return Source(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, raw)
	}
}
