package mapping

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/orgs"
)

// ChartReader is the slice of the chart registry the resolver needs.
type ChartReader interface {
	ListUnmappedAccounts(ctx context.Context, companyID uuid.UUID) ([]chart.CompanyAccount, error)
	ListMasterAccounts(ctx context.Context, orgID uuid.UUID, filter chart.MasterAccountFilter) ([]chart.MasterAccount, error)
}

// CompanyReader resolves a company to its organization.
type CompanyReader interface {
	GetCompany(ctx context.Context, id uuid.UUID) (orgs.Company, error)
}

// SuggestionBatch is the result of one resolver call.
type SuggestionBatch struct {
	Suggestions    []MappingSuggestion `json:"suggestions"`
	UnmappedCount  int                 `json:"unmapped_count"`
	BelowThreshold int                 `json:"below_threshold"`
	UsedFallback   bool                `json:"used_fallback"`
}

// SuggestionRecorder counts produced suggestions per matcher source.
type SuggestionRecorder interface {
	AddSuggestions(source string, count int)
}

// Resolver produces mapping suggestions for a company's unmapped accounts.
// The model matcher is tried first when configured; the heuristic matcher
// covers any model failure so callers never see a matching error.
type Resolver struct {
	companies CompanyReader
	charts    ChartReader
	model     Matcher
	fallback  Matcher
	metrics   SuggestionRecorder
	logger    *slog.Logger
}

// NewResolver constructs a resolver. model may be nil, in which case every
// batch uses the heuristic matcher directly.
func NewResolver(companies CompanyReader, charts ChartReader, model Matcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		companies: companies,
		charts:    charts,
		model:     model,
		fallback:  HeuristicMatcher{},
		logger:    logger,
	}
}

// WithMetrics attaches a suggestion counter. Nil-safe.
func (r *Resolver) WithMetrics(rec SuggestionRecorder) *Resolver {
	r.metrics = rec
	return r
}

// Suggest scores every unmapped account of the company against the
// organization's master chart. Suggestions below threshold are dropped but
// counted. Zero unmapped accounts yields an empty batch, which is success.
func (r *Resolver) Suggest(ctx context.Context, companyID uuid.UUID, threshold float64) (SuggestionBatch, error) {
	if threshold < 0 || threshold > 1 {
		return SuggestionBatch{}, ErrInvalidThreshold
	}

	company, err := r.companies.GetCompany(ctx, companyID)
	if err != nil {
		return SuggestionBatch{}, err
	}
	unmapped, err := r.charts.ListUnmappedAccounts(ctx, companyID)
	if err != nil {
		return SuggestionBatch{}, err
	}
	if len(unmapped) == 0 {
		return SuggestionBatch{}, nil
	}
	masters, err := r.charts.ListMasterAccounts(ctx, company.OrganizationID, chart.MasterAccountFilter{})
	if err != nil {
		return SuggestionBatch{}, err
	}
	if len(masters) == 0 {
		return SuggestionBatch{}, ErrEmptyMasterChart
	}

	batch := SuggestionBatch{UnmappedCount: len(unmapped)}

	matcher := r.model
	if matcher == nil {
		matcher = r.fallback
	}
	suggestions, err := matcher.MatchBatch(ctx, unmapped, masters)
	if err != nil {
		if r.model == nil {
			return SuggestionBatch{}, err
		}
		r.log().Warn("model matcher failed, falling back to heuristic",
			"company_id", companyID, "error", err)
		batch.UsedFallback = true
		matcher = r.fallback
		suggestions, err = matcher.MatchBatch(ctx, unmapped, masters)
		if err != nil {
			return SuggestionBatch{}, err
		}
	}

	kept := suggestions[:0]
	for _, sug := range suggestions {
		if sug.ConfidenceScore < threshold {
			batch.BelowThreshold++
			continue
		}
		kept = append(kept, sug)
	}

	numberByID := make(map[uuid.UUID]string, len(unmapped))
	for _, acc := range unmapped {
		numberByID[acc.ID] = acc.AccountNumber
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].ConfidenceScore != kept[j].ConfidenceScore {
			return kept[i].ConfidenceScore > kept[j].ConfidenceScore
		}
		return numberByID[kept[i].CompanyAccountID] < numberByID[kept[j].CompanyAccountID]
	})
	batch.Suggestions = kept
	if r.metrics != nil {
		r.metrics.AddSuggestions(matcher.Name(), len(kept))
	}
	return batch, nil
}

func (r *Resolver) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
