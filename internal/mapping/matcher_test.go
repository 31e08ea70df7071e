package mapping

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/crestline-fin/crestline/internal/chart"
)

func master(number, name string, accType chart.AccountType) chart.MasterAccount {
	return chart.MasterAccount{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		AccountNumber:  number,
		Name:           name,
		Type:           accType,
		Active:         true,
	}
}

func companyAccount(number, name string, accType chart.AccountType) chart.CompanyAccount {
	return chart.CompanyAccount{
		ID:            uuid.New(),
		CompanyID:     uuid.New(),
		AccountNumber: number,
		Name:          name,
		Type:          accType,
		Active:        true,
	}
}

func TestHeuristicMatchesCashInBank(t *testing.T) {
	acc := companyAccount("1010", "Cash in Bank", chart.TypeAsset)
	masters := []chart.MasterAccount{
		master("1000", "Cash and Cash Equivalents", chart.TypeAsset),
		master("1100", "Accounts Receivable", chart.TypeAsset),
		master("2000", "Accounts Payable", chart.TypeLiability),
	}

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, masters)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(sugs))
	}
	sug := sugs[0]
	if sug.MasterAccountID != masters[0].ID {
		t.Fatalf("expected match on Cash and Cash Equivalents, got %s", sug.MasterAccountID)
	}
	if !sug.AccountTypeMatch {
		t.Fatal("expected account_type_match=true")
	}
	if sug.NameSimilarity != SimilarityHigh {
		t.Fatalf("expected high similarity, got %q", sug.NameSimilarity)
	}
	if sug.ConfidenceScore < 0.65 {
		t.Fatalf("expected confidence above 0.65, got %.2f", sug.ConfidenceScore)
	}
	if !strings.Contains(sug.Reasoning, "cash") {
		t.Fatalf("reasoning should mention shared tokens, got %q", sug.Reasoning)
	}
}

func TestHeuristicPrefersSameTypeOverBetterName(t *testing.T) {
	acc := companyAccount("4010", "Service Revenue", chart.TypeRevenue)
	sameType := master("4000", "Operating Income", chart.TypeRevenue)
	crossType := master("6000", "Service Revenue", chart.TypeExpense)

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, []chart.MasterAccount{crossType, sameType})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(sugs))
	}
	if sugs[0].MasterAccountID != sameType.ID {
		t.Fatal("same-type candidate must win over cross-type name match")
	}
	if !sugs[0].AccountTypeMatch {
		t.Fatal("expected account_type_match=true")
	}
}

func TestHeuristicCrossTypeFallbackIsFlagged(t *testing.T) {
	acc := companyAccount("4010", "Subscription Revenue", chart.TypeRevenue)
	masters := []chart.MasterAccount{
		master("6000", "Subscription Costs", chart.TypeExpense),
	}

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, masters)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(sugs))
	}
	sug := sugs[0]
	if sug.AccountTypeMatch {
		t.Fatal("cross-type fallback must set account_type_match=false")
	}
	if sug.ConfidenceScore >= confidenceFloor {
		t.Fatalf("cross-type confidence should stay below the same-type floor, got %.2f", sug.ConfidenceScore)
	}
	if !strings.Contains(sug.Reasoning, "differs") {
		t.Fatalf("reasoning should flag the type mismatch, got %q", sug.Reasoning)
	}
}

func TestHeuristicWeakSameTypeMatchKeepsFloor(t *testing.T) {
	acc := companyAccount("1900", "Miscellaneous Holdings", chart.TypeAsset)
	first := master("1000", "Prepaid Insurance", chart.TypeAsset)
	second := master("1500", "Plant and Machinery", chart.TypeAsset)

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, []chart.MasterAccount{second, first})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(sugs))
	}
	sug := sugs[0]
	if sug.MasterAccountID != first.ID {
		t.Fatal("zero-overlap matches must fall back to the lowest account number")
	}
	if sug.NameSimilarity != SimilarityLow {
		t.Fatalf("expected low similarity, got %q", sug.NameSimilarity)
	}
	if sug.ConfidenceScore < confidenceFloor || sug.ConfidenceScore > 0.75 {
		t.Fatalf("weak match confidence out of range: %.2f", sug.ConfidenceScore)
	}
}

func TestHeuristicSkipsAccountWithNoCandidates(t *testing.T) {
	acc := companyAccount("1010", "Cash", chart.TypeAsset)
	inactive := master("1000", "Cash and Cash Equivalents", chart.TypeAsset)
	inactive.Active = false

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, []chart.MasterAccount{inactive})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(sugs))
	}
}

func TestHeuristicRanksAlternatives(t *testing.T) {
	acc := companyAccount("1020", "Trade Receivables", chart.TypeAsset)
	best := master("1100", "Accounts Receivable", chart.TypeAsset)
	alt := master("1110", "Other Receivables", chart.TypeAsset)
	unrelated := master("1500", "Fixed Assets", chart.TypeAsset)

	sugs, err := HeuristicMatcher{}.MatchBatch(context.Background(), []chart.CompanyAccount{acc}, []chart.MasterAccount{unrelated, alt, best})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sugs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(sugs))
	}
	sug := sugs[0]
	if sug.MasterAccountID != best.ID && sug.MasterAccountID != alt.ID {
		t.Fatal("expected a receivables account as best match")
	}
	if len(sug.AlternativeMatches) == 0 {
		t.Fatal("expected at least one alternative")
	}
	for _, a := range sug.AlternativeMatches {
		if strings.Contains(a, "Fixed Assets") {
			t.Fatalf("zero-score candidate listed as alternative: %q", a)
		}
	}
}

func TestNameTokensNormalization(t *testing.T) {
	got := nameTokens("Comptes Clients (Créances) and the Receivables")
	want := map[string]bool{"compte": true, "client": true, "creance": true, "receivable": true}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
	for _, tok := range got {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, got)
		}
	}
}

func TestSimilarityBuckets(t *testing.T) {
	if similarityBucket(0.7) != SimilarityHigh {
		t.Fatal("0.7 should be high")
	}
	if similarityBucket(0.4) != SimilarityMedium {
		t.Fatal("0.4 should be medium")
	}
	if similarityBucket(0.1) != SimilarityLow {
		t.Fatal("0.1 should be low")
	}
}
