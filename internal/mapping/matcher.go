package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/crestline-fin/crestline/internal/chart"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Matcher proposes master-account matches for a batch of company accounts.
// Implementations must not mutate their inputs.
type Matcher interface {
	Name() string
	MatchBatch(ctx context.Context, accounts []chart.CompanyAccount, masters []chart.MasterAccount) ([]MappingSuggestion, error)
}

const (
	containmentBonus = 0.3
	associationBonus = 0.2
	weakMatchScore   = 0.1

	confidenceFloor = 0.65
	confidenceBase  = 0.70
	confidenceSlope = 0.30
	confidenceCap   = 0.98

	// Cross-type fallbacks stay below the same-type confidence floor so a
	// type mismatch can never outrank a typed match in the same batch.
	crossTypeBase = 0.45
	crossTypeCap  = 0.60

	maxAlternatives = 2
)

// stopwords are dropped from account names before token comparison.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {}, "to": {}, "for": {},
}

// relatedTokens pairs terms that name the same financial concept in
// different charts. Tokens here are already singularized.
var relatedTokens = map[string][]string{
	"bank":       {"cash"},
	"cash":       {"bank"},
	"receivable": {"debtor"},
	"debtor":     {"receivable"},
	"payable":    {"creditor"},
	"creditor":   {"payable"},
	"inventory":  {"stock"},
	"stock":      {"inventory"},
	"sale":       {"revenue", "income"},
	"revenue":    {"sale", "income", "subscription"},
	"income":     {"revenue", "sale"},
	"expense":    {"cost"},
	"cost":       {"expense"},
	"license":    {"software"},
	"software":   {"license"},
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// HeuristicMatcher is the deterministic name/type matcher. It never fails
// and serves as the guaranteed fallback when the model backend is down.
type HeuristicMatcher struct{}

func (HeuristicMatcher) Name() string { return "heuristic" }

func (HeuristicMatcher) MatchBatch(_ context.Context, accounts []chart.CompanyAccount, masters []chart.MasterAccount) ([]MappingSuggestion, error) {
	var suggestions []MappingSuggestion
	for _, acc := range accounts {
		if sug, ok := matchAccount(acc, masters); ok {
			suggestions = append(suggestions, sug)
		}
	}
	return suggestions, nil
}

type scoredCandidate struct {
	master    chart.MasterAccount
	nameScore float64
	shared    []string
	related   bool
}

func matchAccount(acc chart.CompanyAccount, masters []chart.MasterAccount) (MappingSuggestion, bool) {
	accTokens := nameTokens(acc.Name)

	var sameType, crossType []scoredCandidate
	for _, m := range masters {
		if !m.Active {
			continue
		}
		cand := scoreCandidate(accTokens, acc.Name, m)
		if m.Type == acc.Type {
			sameType = append(sameType, cand)
		} else {
			crossType = append(crossType, cand)
		}
	}
	if len(sameType) == 0 && len(crossType) == 0 {
		return MappingSuggestion{}, false
	}

	sortCandidates(sameType)
	sortCandidates(crossType)

	// Same-type candidates win even with weak name overlap; cross-type is a
	// last resort and is flagged for review.
	if len(sameType) > 0 {
		best := sameType[0]
		if best.nameScore == 0 {
			best.nameScore = weakMatchScore
		}
		confidence := confidenceBase + best.nameScore*confidenceSlope
		if confidence > confidenceCap {
			confidence = confidenceCap
		}
		if confidence < confidenceFloor {
			confidence = confidenceFloor
		}
		return buildSuggestion(acc, best, confidence, true, sameType[1:]), true
	}

	best := crossType[0]
	confidence := crossTypeBase + best.nameScore*confidenceSlope
	if confidence > crossTypeCap {
		confidence = crossTypeCap
	}
	return buildSuggestion(acc, best, confidence, false, crossType[1:]), true
}

func scoreCandidate(accTokens []string, accName string, m chart.MasterAccount) scoredCandidate {
	masterTokens := nameTokens(m.Name)
	score, shared := tokenOverlap(accTokens, masterTokens)
	if containsNormalized(accName, m.Name) {
		score += containmentBonus
	}
	related := relatedTokenCount(accTokens, masterTokens)
	score += float64(related) * associationBonus
	if score > 1 {
		score = 1
	}
	return scoredCandidate{master: m, nameScore: score, shared: shared, related: related > 0}
}

func sortCandidates(cands []scoredCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].nameScore != cands[j].nameScore {
			return cands[i].nameScore > cands[j].nameScore
		}
		return cands[i].master.AccountNumber < cands[j].master.AccountNumber
	})
}

func buildSuggestion(acc chart.CompanyAccount, best scoredCandidate, confidence float64, typeMatch bool, rest []scoredCandidate) MappingSuggestion {
	var alternatives []string
	for _, alt := range rest {
		if alt.nameScore <= 0 {
			break
		}
		alternatives = append(alternatives, fmt.Sprintf("%s %s (score %.2f)", alt.master.AccountNumber, alt.master.Name, alt.nameScore))
		if len(alternatives) == maxAlternatives {
			break
		}
	}
	return MappingSuggestion{
		CompanyAccountID:   acc.ID,
		MasterAccountID:    best.master.ID,
		ConfidenceScore:    confidence,
		AccountTypeMatch:   typeMatch,
		NameSimilarity:     similarityBucket(best.nameScore),
		Reasoning:          buildReasoning(acc, best, typeMatch),
		AlternativeMatches: alternatives,
	}
}

func buildReasoning(acc chart.CompanyAccount, best scoredCandidate, typeMatch bool) string {
	var parts []string
	if len(best.shared) > 0 {
		parts = append(parts, fmt.Sprintf("shared name tokens: %s", strings.Join(best.shared, ", ")))
	}
	if best.related {
		parts = append(parts, "related financial terms in both names")
	}
	if len(parts) == 0 {
		parts = append(parts, "no name overlap")
	}
	if typeMatch {
		parts = append(parts, fmt.Sprintf("account types match (%s)", acc.Type))
	} else {
		parts = append(parts, fmt.Sprintf("account type differs (%s vs %s)", acc.Type, best.master.Type))
	}
	return strings.Join(parts, "; ")
}

func similarityBucket(score float64) Similarity {
	switch {
	case score > 0.6:
		return SimilarityHigh
	case score > 0.3:
		return SimilarityMedium
	default:
		return SimilarityLow
	}
}

// nameTokens lowercases, strips accents and punctuation, singularizes and
// drops stopwords, returning the distinct tokens in first-seen order.
func nameTokens(name string) []string {
	normalized := normalizeName(name)
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		tok = singularize(tok)
		if tok == "" {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

func normalizeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	stripped, _, err := transform.String(deaccent, lowered)
	if err != nil {
		stripped = lowered
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func singularize(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

func tokenOverlap(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	set := make(map[string]struct{}, len(b))
	for _, tok := range b {
		set[tok] = struct{}{}
	}
	var shared []string
	for _, tok := range a {
		if _, ok := set[tok]; ok {
			shared = append(shared, tok)
		}
	}
	if len(shared) == 0 {
		return 0, nil
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(len(shared)) / float64(denom), shared
}

func containsNormalized(a, b string) bool {
	na := strings.Join(strings.Fields(normalizeName(a)), " ")
	nb := strings.Join(strings.Fields(normalizeName(b)), " ")
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// relatedTokenCount counts account-name tokens whose associated terms appear
// in the master name. Each source token contributes at most once.
func relatedTokenCount(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, tok := range b {
		set[tok] = struct{}{}
	}
	count := 0
	for _, tok := range a {
		for _, rel := range relatedTokens[tok] {
			if _, ok := set[rel]; ok {
				count++
				break
			}
		}
	}
	return count
}
