package elimination

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func snap(companyID uuid.UUID, exposures ...trialbalance.Exposure) trialbalance.Snapshot {
	return trialbalance.Snapshot{
		CompanyID:    companyID,
		FiscalYear:   2026,
		FiscalPeriod: 3,
		Exposures:    exposures,
	}
}

func exposure(accType chart.AccountType, net string, counterparty *uuid.UUID) trialbalance.Exposure {
	return trialbalance.Exposure{
		MasterAccountID: uuid.New(),
		AccountType:     accType,
		Counterparty:    counterparty,
		Net:             dec(net),
	}
}

func TestDetectPairsReceivableAgainstPayable(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeAsset, "75000", &companyB)),
		snap(companyB, exposure(chart.TypeLiability, "-75000", &companyA)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != KindARAP {
		t.Fatalf("kind = %q", e.Kind)
	}
	if e.FromCompanyID != companyA || e.ToCompanyID != companyB {
		t.Fatalf("direction wrong: %s -> %s", e.FromCompanyID, e.ToCompanyID)
	}
	if !e.Amount.Equal(dec("75000")) {
		t.Fatalf("amount = %s", e.Amount)
	}
	if e.Status != StatusEliminated {
		t.Fatalf("status = %q", e.Status)
	}
}

func TestDetectPairsRevenueAgainstExpense(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeRevenue, "-50000", nil)),
		snap(companyB, exposure(chart.TypeExpense, "50000", nil)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != KindRevenueExpense {
		t.Fatalf("kind = %q", e.Kind)
	}
	if !e.Amount.Equal(dec("50000")) {
		t.Fatalf("amount = %s", e.Amount)
	}
	if e.Status != StatusEliminated {
		t.Fatalf("status = %q", e.Status)
	}
}

func TestDetectUsesSmallerMagnitude(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeAsset, "80000", nil)),
		snap(companyB, exposure(chart.TypeLiability, "-75000.50", nil)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(dec("75000.50")) {
		t.Fatalf("amount = %s, want the smaller magnitude", entries[0].Amount)
	}
}

func TestDetectPrefersClosestMagnitude(t *testing.T) {
	companyA, companyB, companyC := uuid.New(), uuid.New(), uuid.New()
	closest := exposure(chart.TypeLiability, "-100000", nil)
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeAsset, "100000", nil)),
		snap(companyB, exposure(chart.TypeLiability, "-95000", nil)),
		snap(companyC, closest),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ToCompanyID != companyC {
		t.Fatal("expected pairing with the closest magnitude")
	}
	if e.Status != StatusEliminated {
		t.Fatalf("status = %q", e.Status)
	}
	if !e.Amount.Equal(dec("100000")) {
		t.Fatalf("amount = %s", e.Amount)
	}
}

func TestDetectAmbiguousTieIsDetectedNotEliminated(t *testing.T) {
	companyA, companyB, companyC := uuid.New(), uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeAsset, "100000", nil)),
		snap(companyB, exposure(chart.TypeLiability, "-100000", nil)),
		snap(companyC, exposure(chart.TypeLiability, "-100000", nil)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != StatusDetected {
		t.Fatalf("ambiguous tie must stay detected, got %q", e.Status)
	}
	if e.Note == "" {
		t.Fatal("ambiguous entry should carry a note")
	}

	arAP, _ := EliminatedTotals(entries)
	if !arAP.IsZero() {
		t.Fatalf("detected entries must not contribute to eliminated totals, got %s", arAP)
	}
}

func TestDetectHonorsCounterpartyTags(t *testing.T) {
	companyA, companyB, companyC := uuid.New(), uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		// A's receivable is tagged against B, but only C has a payable.
		snap(companyA, exposure(chart.TypeAsset, "60000", &companyB)),
		snap(companyB),
		snap(companyC, exposure(chart.TypeLiability, "-60000", nil)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 0 {
		t.Fatalf("tagged receivable must not pair with a third company, got %+v", entries)
	}
}

func TestDetectIgnoresImmaterialExposures(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		snap(companyA, exposure(chart.TypeAsset, "0.01", nil)),
		snap(companyB, exposure(chart.TypeLiability, "-0.01", nil)),
	}

	entries := Detect(breakdowns, Config{MaterialityThreshold: dec("0.01")})
	if len(entries) != 0 {
		t.Fatalf("immaterial exposures must be skipped, got %+v", entries)
	}
}

func TestDetectSkipsWrongDirectionBalances(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	breakdowns := []trialbalance.Snapshot{
		// Credit-balance asset and debit-balance liability never pair.
		snap(companyA, exposure(chart.TypeAsset, "-40000", nil)),
		snap(companyB, exposure(chart.TypeLiability, "40000", nil)),
	}

	entries := Detect(breakdowns, Config{})
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	companyA, companyB, companyC := uuid.New(), uuid.New(), uuid.New()
	build := func() []trialbalance.Snapshot {
		return []trialbalance.Snapshot{
			snap(companyA,
				trialbalance.Exposure{MasterAccountID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), AccountType: chart.TypeAsset, Net: dec("10000")},
				trialbalance.Exposure{MasterAccountID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), AccountType: chart.TypeRevenue, Net: dec("-2500")},
			),
			snap(companyB,
				trialbalance.Exposure{MasterAccountID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), AccountType: chart.TypeLiability, Net: dec("-9000")},
				trialbalance.Exposure{MasterAccountID: uuid.MustParse("00000000-0000-0000-0000-000000000004"), AccountType: chart.TypeExpense, Net: dec("2500")},
			),
			snap(companyC,
				trialbalance.Exposure{MasterAccountID: uuid.MustParse("00000000-0000-0000-0000-000000000005"), AccountType: chart.TypeLiability, Net: dec("-10000")},
			),
		}
	}

	first := Detect(build(), Config{})
	second := Detect(build(), Config{})
	if len(first) != len(second) {
		t.Fatalf("entry counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].FromCompanyID != second[i].FromCompanyID ||
			first[i].ToCompanyID != second[i].ToCompanyID ||
			!first[i].Amount.Equal(second[i].Amount) ||
			first[i].Status != second[i].Status {
			t.Fatalf("entry %d differs between runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestEliminatedTotalsByKind(t *testing.T) {
	entries := []Entry{
		{Kind: KindARAP, Amount: dec("100"), Status: StatusEliminated},
		{Kind: KindARAP, Amount: dec("50"), Status: StatusDetected},
		{Kind: KindRevenueExpense, Amount: dec("30"), Status: StatusEliminated},
	}
	arAP, revExp := EliminatedTotals(entries)
	if !arAP.Equal(dec("100")) {
		t.Fatalf("ar_ap total = %s", arAP)
	}
	if !revExp.Equal(dec("30")) {
		t.Fatalf("revenue_expense total = %s", revExp)
	}
	if CountByStatus(entries, StatusDetected) != 1 {
		t.Fatal("expected 1 detected entry")
	}
}
