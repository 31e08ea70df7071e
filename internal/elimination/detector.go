package elimination

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

// Config tunes detection. MaterialityThreshold drops exposures whose
// magnitude does not exceed it; zero means everything is considered.
type Config struct {
	MaterialityThreshold decimal.Decimal
}

// side is one half of a potential elimination pair.
type side struct {
	companyIdx   int
	companyID    uuid.UUID
	accountID    uuid.UUID
	counterparty *uuid.UUID
	amount       decimal.Decimal
	consumed     bool
}

// Detect scans the run's company breakdowns for offsetting intercompany
// exposures and pairs them. It is a pure function of its inputs: no
// storage, no clock, and a deterministic result for a given input order.
//
// Receivable-side exposures (asset accounts with debit balances) pair
// against payable-side ones (liability accounts with credit balances);
// intercompany revenue pairs against intercompany expense. Each pair
// eliminates the smaller magnitude. When several counterparties offset
// equally well, the pair is emitted as detected instead of eliminated and
// left for review.
func Detect(breakdowns []trialbalance.Snapshot, cfg Config) []Entry {
	var arSides, apSides, revSides, expSides []side
	for idx, snap := range breakdowns {
		for _, exp := range snap.Exposures {
			if exp.Counterparty != nil && *exp.Counterparty == snap.CompanyID {
				continue
			}
			item := side{
				companyIdx:   idx,
				companyID:    snap.CompanyID,
				accountID:    exp.MasterAccountID,
				counterparty: exp.Counterparty,
			}
			switch exp.AccountType {
			case chart.TypeAsset:
				if exp.Net.Sign() > 0 {
					item.amount = exp.Net
					arSides = append(arSides, item)
				}
			case chart.TypeLiability:
				if exp.Net.Sign() < 0 {
					item.amount = exp.Net.Neg()
					apSides = append(apSides, item)
				}
			case chart.TypeRevenue:
				if exp.Net.Sign() < 0 {
					item.amount = exp.Net.Neg()
					revSides = append(revSides, item)
				}
			case chart.TypeExpense:
				if exp.Net.Sign() > 0 {
					item.amount = exp.Net
					expSides = append(expSides, item)
				}
			}
		}
	}

	arSides = material(arSides, cfg.MaterialityThreshold)
	apSides = material(apSides, cfg.MaterialityThreshold)
	revSides = material(revSides, cfg.MaterialityThreshold)
	expSides = material(expSides, cfg.MaterialityThreshold)

	entries := pairSides(arSides, apSides, KindARAP)
	entries = append(entries, pairSides(revSides, expSides, KindRevenueExpense)...)
	return entries
}

func material(sides []side, threshold decimal.Decimal) []side {
	if threshold.Sign() <= 0 {
		return sides
	}
	kept := sides[:0]
	for _, s := range sides {
		if s.amount.GreaterThan(threshold) {
			kept = append(kept, s)
		}
	}
	return kept
}

// pairSides greedily matches each from-side item to its closest-magnitude
// compatible to-side item. Items are walked in run order then account id,
// so the result does not depend on map iteration or input shuffling.
func pairSides(from, to []side, kind Kind) []Entry {
	sortSides(from)
	sortSides(to)

	var entries []Entry
	for i := range from {
		f := &from[i]
		best := -1
		var bestDist decimal.Decimal
		ambiguous := false
		for j := range to {
			t := &to[j]
			if t.consumed || !compatible(f, t) {
				continue
			}
			dist := f.amount.Sub(t.amount).Abs()
			switch {
			case best == -1 || dist.LessThan(bestDist):
				best = j
				bestDist = dist
				ambiguous = false
			case dist.Equal(bestDist) && to[j].companyID != to[best].companyID:
				// A different counterparty offsets equally well.
				ambiguous = true
			}
		}
		if best == -1 {
			continue
		}
		t := &to[best]
		t.consumed = true

		entry := Entry{
			ID:            uuid.New(),
			FromCompanyID: f.companyID,
			ToCompanyID:   t.companyID,
			FromAccountID: f.accountID,
			ToAccountID:   t.accountID,
			Kind:          kind,
			Amount:        decimal.Min(f.amount, t.amount),
			Status:        StatusEliminated,
		}
		if ambiguous {
			entry.Status = StatusDetected
			entry.Note = fmt.Sprintf("ambiguous match: multiple counterparties offset %s equally", f.amount)
		}
		entries = append(entries, entry)
	}
	return entries
}

// compatible reports whether the two sides may belong to the same
// intercompany relationship. Explicit counterparty tags must agree;
// untagged sides match any other company.
func compatible(f, t *side) bool {
	if f.companyID == t.companyID {
		return false
	}
	if f.counterparty != nil && *f.counterparty != t.companyID {
		return false
	}
	if t.counterparty != nil && *t.counterparty != f.companyID {
		return false
	}
	return true
}

func sortSides(sides []side) {
	sort.SliceStable(sides, func(i, j int) bool {
		if sides[i].companyIdx != sides[j].companyIdx {
			return sides[i].companyIdx < sides[j].companyIdx
		}
		return sides[i].accountID.String() < sides[j].accountID.String()
	})
}
