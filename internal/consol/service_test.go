package consol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/elimination"
	"github.com/crestline-fin/crestline/internal/orgs"
	"github.com/crestline-fin/crestline/internal/shared"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

type stubRunRepo struct {
	runs      map[uuid.UUID]Run
	inserted  int
	insertErr error
	finalized []Run
}

func newStubRunRepo() *stubRunRepo {
	return &stubRunRepo{runs: make(map[uuid.UUID]Run)}
}

func (r *stubRunRepo) InsertRun(ctx context.Context, run Run) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted++
	r.runs[run.ID] = run
	return nil
}

func (r *stubRunRepo) FinalizeRun(ctx context.Context, run Run) error {
	stored, ok := r.runs[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	if stored.Status != RunStatusRunning {
		return fmt.Errorf("%w: %s", ErrRunAlreadyFinal, stored.Status)
	}
	r.finalized = append(r.finalized, run)
	r.runs[run.ID] = run
	return nil
}

func (r *stubRunRepo) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (r *stubRunRepo) ListRuns(ctx context.Context, orgID uuid.UUID, p shared.Pagination) ([]Run, int, error) {
	var out []Run
	for _, run := range r.runs {
		if run.OrganizationID == orgID {
			out = append(out, run)
		}
	}
	return out, len(out), nil
}

type stubRegistry struct {
	err error
}

func (r *stubRegistry) ResolveRunCompanies(ctx context.Context, orgID uuid.UUID, companyIDs []uuid.UUID) ([]orgs.Company, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]orgs.Company, len(companyIDs))
	for i, id := range companyIDs {
		out[i] = orgs.Company{ID: id, OrganizationID: orgID, Active: true}
	}
	return out, nil
}

type stubAggregator struct {
	snapshots map[uuid.UUID]trialbalance.Snapshot
	errs      map[uuid.UUID]error
}

func (a *stubAggregator) Aggregate(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (trialbalance.Snapshot, error) {
	if err := a.errs[companyID]; err != nil {
		return trialbalance.Snapshot{}, err
	}
	snap, ok := a.snapshots[companyID]
	if !ok {
		return trialbalance.Snapshot{}, fmt.Errorf("no snapshot for %s", companyID)
	}
	snap.CompanyID = companyID
	snap.FiscalYear = fiscalYear
	snap.FiscalPeriod = fiscalPeriod
	return snap, nil
}

type aggregatorFunc func(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (trialbalance.Snapshot, error)

func (f aggregatorFunc) Aggregate(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (trialbalance.Snapshot, error) {
	return f(ctx, companyID, fiscalYear, fiscalPeriod)
}

type stubLocker struct {
	err      error
	acquired []string
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

type stubIdem struct {
	keys    map[string]bool
	deleted []string
}

func (s *stubIdem) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *stubIdem) Delete(ctx context.Context, key, scope string) error {
	delete(s.keys, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func snapshot(t *testing.T, assets, liabilities, equity, revenue, expenses string, exposures ...trialbalance.Exposure) trialbalance.Snapshot {
	t.Helper()
	rev := dec(t, revenue)
	exp := dec(t, expenses)
	return trialbalance.Snapshot{
		TotalAssets:      dec(t, assets),
		TotalLiabilities: dec(t, liabilities),
		TotalEquity:      dec(t, equity),
		TotalRevenue:     rev,
		TotalExpenses:    exp,
		NetIncome:        rev.Sub(exp),
		Exposures:        exposures,
	}
}

func exposure(t *testing.T, accountType chart.AccountType, net string, counterparty *uuid.UUID) trialbalance.Exposure {
	t.Helper()
	return trialbalance.Exposure{
		MasterAccountID: uuid.New(),
		AccountType:     accountType,
		Counterparty:    counterparty,
		Net:             dec(t, net),
	}
}

func newTestService(repo *stubRunRepo, agg Aggregator, cfg RunConfig) (*Service, *stubLocker) {
	lock := &stubLocker{}
	svc := NewService(ServiceParams{
		Repo:       repo,
		Registry:   &stubRegistry{},
		Aggregator: agg,
		Lock:       lock,
		Config:     cfg,
	})
	return svc, lock
}

func runInput(org uuid.UUID, companyIDs ...uuid.UUID) RunInput {
	return RunInput{
		OrganizationID: org,
		FiscalYear:     2026,
		FiscalPeriod:   3,
		CompanyIDs:     companyIDs,
		ActorID:        uuid.New(),
	}
}

func TestRunEliminatesIntercompanyRevenue(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "600000", "200000", "400000", "500000", "300000",
			exposure(t, chart.TypeRevenue, "-50000", &beta)),
		beta: snapshot(t, "400000", "150000", "250000", "300000", "200000",
			exposure(t, chart.TypeExpense, "50000", &alpha)),
	}}
	repo := newStubRunRepo()
	svc, _ := newTestService(repo, agg, RunConfig{})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if !run.TotalRevenue.Equal(dec(t, "750000")) {
		t.Fatalf("revenue = %s, want 750000", run.TotalRevenue)
	}
	if !run.TotalExpenses.Equal(dec(t, "450000")) {
		t.Fatalf("expenses = %s, want 450000", run.TotalExpenses)
	}
	if !run.NetIncome.Equal(dec(t, "300000")) {
		t.Fatalf("net income = %s, want 300000", run.NetIncome)
	}
	if !run.TotalAssets.Equal(dec(t, "1000000")) {
		t.Fatalf("assets = %s, want 1000000", run.TotalAssets)
	}
	if !run.Balanced {
		t.Fatal("run should be balanced")
	}
	if run.EliminationCount != 1 {
		t.Fatalf("elimination count = %d, want 1", run.EliminationCount)
	}
	entry := run.Eliminations[0]
	if entry.Kind != elimination.KindRevenueExpense {
		t.Fatalf("kind = %s", entry.Kind)
	}
	if entry.RunID != run.ID {
		t.Fatalf("entry run id = %s, want %s", entry.RunID, run.ID)
	}
	if entry.Status != elimination.StatusEliminated {
		t.Fatalf("entry status = %s", entry.Status)
	}
	if run.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if len(run.CompanyBreakdowns) != 2 ||
		run.CompanyBreakdowns[0].CompanyID != alpha ||
		run.CompanyBreakdowns[1].CompanyID != beta {
		t.Fatalf("breakdowns out of order: %+v", run.CompanyBreakdowns)
	}
	if len(repo.finalized) != 1 || repo.finalized[0].Status != RunStatusCompleted {
		t.Fatalf("finalized = %+v", repo.finalized)
	}
}

func TestRunNetsReceivableAgainstPayable(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "500000", "100000", "400000", "0", "0",
			exposure(t, chart.TypeAsset, "30000", &beta)),
		beta: snapshot(t, "300000", "130000", "170000", "0", "0",
			exposure(t, chart.TypeLiability, "-30000", &alpha)),
	}}
	repo := newStubRunRepo()
	svc, _ := newTestService(repo, agg, RunConfig{})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !run.TotalAssets.Equal(dec(t, "770000")) {
		t.Fatalf("assets = %s, want 770000", run.TotalAssets)
	}
	if !run.TotalLiabilities.Equal(dec(t, "200000")) {
		t.Fatalf("liabilities = %s, want 200000", run.TotalLiabilities)
	}
	if !run.Balanced {
		t.Fatal("run should be balanced")
	}
	if run.EliminationCount != 1 {
		t.Fatalf("elimination count = %d", run.EliminationCount)
	}
	entry := run.Eliminations[0]
	if entry.Kind != elimination.KindARAP {
		t.Fatalf("kind = %s", entry.Kind)
	}
	if !entry.Amount.Equal(dec(t, "30000")) {
		t.Fatalf("amount = %s, want 30000", entry.Amount)
	}
}

func TestRunFlagsImbalanceButCompletes(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()

	snapAlpha := snapshot(t, "1000000.00", "600000", "400000.01", "0", "0")
	snapAlpha.UnmappedAccountCount = 2
	snapBeta := snapshot(t, "0", "0", "0", "0", "0")
	snapBeta.UnmappedAccountCount = 1
	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapAlpha,
		beta:  snapBeta,
	}}
	repo := newStubRunRepo()
	svc, _ := newTestService(repo, agg, RunConfig{})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if run.Balanced {
		t.Fatal("a 0.01 difference must be flagged, not rounded away")
	}
	if run.FailureReason != "" {
		t.Fatalf("failure reason = %q, want empty", run.FailureReason)
	}
	if run.UnmappedAccountCount != 3 {
		t.Fatalf("unmapped account count = %d, want 3", run.UnmappedAccountCount)
	}
	if len(repo.finalized) != 1 || repo.finalized[0].Balanced {
		t.Fatalf("persisted run should carry the imbalance flag: %+v", repo.finalized)
	}
}

func TestRunFailsWhenAggregatorErrors(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()

	agg := &stubAggregator{
		snapshots: map[uuid.UUID]trialbalance.Snapshot{
			alpha: snapshot(t, "1000", "400", "600", "0", "0"),
		},
		errs: map[uuid.UUID]error{beta: errors.New("trial balance query timed out")},
	}
	repo := newStubRunRepo()
	svc, _ := newTestService(repo, agg, RunConfig{})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta))
	if err != nil {
		t.Fatalf("domain failures must finalize, not error: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.FailureReason, "trial balance query timed out") {
		t.Fatalf("failure reason = %q", run.FailureReason)
	}
	if !strings.Contains(run.FailureReason, beta.String()) {
		t.Fatalf("failure reason should name the company: %q", run.FailureReason)
	}
	if run.CompletedAt == nil {
		t.Fatal("failed run must still be terminal")
	}
	if len(repo.finalized) != 1 || repo.finalized[0].Status != RunStatusFailed {
		t.Fatalf("finalized = %+v", repo.finalized)
	}
}

func TestRunFailsWhenPeriodLocked(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "1000", "400", "600", "0", "0"),
	}}
	repo := newStubRunRepo()
	svc, lock := newTestService(repo, agg, RunConfig{})
	lock.err = ErrPeriodLocked

	run, err := svc.Run(context.Background(), runInput(org, alpha))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.FailureReason, "period lock") {
		t.Fatalf("failure reason = %q", run.FailureReason)
	}
}

func TestExecuteSurfacesLockInfrastructureError(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "1000", "400", "600", "0", "0"),
	}}
	repo := newStubRunRepo()
	svc, lock := newTestService(repo, agg, RunConfig{})
	lock.err = errors.New("dial tcp: connection refused")

	prepared, err := svc.Prepare(context.Background(), runInput(org, alpha))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := svc.Execute(context.Background(), prepared.ID); err == nil {
		t.Fatal("infrastructure errors must surface for retry")
	}
	stored, err := repo.GetRun(context.Background(), prepared.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != RunStatusRunning {
		t.Fatalf("status = %s, run must stay running for the retry", stored.Status)
	}
}

func TestExecuteReturnsTerminalRunUnchanged(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "1000", "400", "600", "0", "0"),
	}}
	repo := newStubRunRepo()
	svc, lock := newTestService(repo, agg, RunConfig{})

	first, err := svc.Run(context.Background(), runInput(org, alpha))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	again, err := svc.Execute(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("re-execute: %v", err)
	}
	if again.Status != RunStatusCompleted {
		t.Fatalf("status = %s", again.Status)
	}
	if len(repo.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(repo.finalized))
	}
	if len(lock.acquired) != 1 {
		t.Fatalf("lock acquired %d times, want 1", len(lock.acquired))
	}
	if lock.released != 1 {
		t.Fatalf("lock released %d times, want 1", lock.released)
	}
}

func ambiguousFixture(t *testing.T, alpha, beta, gamma uuid.UUID) *stubAggregator {
	t.Helper()
	return &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "10000", "0", "10000", "0", "0",
			exposure(t, chart.TypeAsset, "10000", nil)),
		beta: snapshot(t, "10000", "10000", "0", "0", "0",
			exposure(t, chart.TypeLiability, "-10000", nil)),
		gamma: snapshot(t, "10000", "10000", "0", "0", "0",
			exposure(t, chart.TypeLiability, "-10000", nil)),
	}}
}

func TestRunFailsWhenAmbiguousMatchesExceedLimit(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()
	gamma := uuid.New()

	repo := newStubRunRepo()
	svc, _ := newTestService(repo, ambiguousFixture(t, alpha, beta, gamma), RunConfig{MaxAmbiguousEliminations: 0})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta, gamma))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.FailureReason, "ambiguous") {
		t.Fatalf("failure reason = %q", run.FailureReason)
	}
	// The detected entries are still persisted so a reviewer can see what
	// tripped the run.
	if len(repo.finalized) != 1 || len(repo.finalized[0].Eliminations) != 1 {
		t.Fatalf("finalized = %+v", repo.finalized)
	}
	if repo.finalized[0].Eliminations[0].Status != elimination.StatusDetected {
		t.Fatalf("entry status = %s", repo.finalized[0].Eliminations[0].Status)
	}
}

func TestRunKeepsAmbiguousMatchesWhenLimitDisabled(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()
	beta := uuid.New()
	gamma := uuid.New()

	repo := newStubRunRepo()
	svc, _ := newTestService(repo, ambiguousFixture(t, alpha, beta, gamma), RunConfig{MaxAmbiguousEliminations: -1})

	run, err := svc.Run(context.Background(), runInput(org, alpha, beta, gamma))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if run.EliminationCount != 1 {
		t.Fatalf("elimination count = %d", run.EliminationCount)
	}
	if run.Eliminations[0].Status != elimination.StatusDetected {
		t.Fatalf("entry status = %s", run.Eliminations[0].Status)
	}
	// Detected entries are not subtracted until someone resolves them.
	if !run.TotalAssets.Equal(dec(t, "30000")) {
		t.Fatalf("assets = %s, want 30000", run.TotalAssets)
	}
	if !run.TotalLiabilities.Equal(dec(t, "20000")) {
		t.Fatalf("liabilities = %s, want 20000", run.TotalLiabilities)
	}
}

func TestExecuteRunsAggregationsInParallel(t *testing.T) {
	org := uuid.New()
	companyIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	arrived := make(chan struct{}, len(companyIDs))
	proceed := make(chan struct{})
	agg := aggregatorFunc(func(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (trialbalance.Snapshot, error) {
		arrived <- struct{}{}
		select {
		case <-proceed:
		case <-time.After(2 * time.Second):
			return trialbalance.Snapshot{}, errors.New("aggregation barrier timed out")
		}
		snap := snapshot(t, "1000", "400", "600", "0", "0")
		snap.CompanyID = companyID
		return snap, nil
	})
	repo := newStubRunRepo()
	svc, _ := newTestService(repo, agg, RunConfig{})

	prepared, err := svc.Prepare(context.Background(), runInput(org, companyIDs...))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	done := make(chan Run, 1)
	go func() {
		run, execErr := svc.Execute(context.Background(), prepared.ID)
		if execErr != nil {
			t.Errorf("execute: %v", execErr)
		}
		done <- run
	}()

	for i := 0; i < len(companyIDs); i++ {
		select {
		case <-arrived:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d aggregations started in parallel", i, len(companyIDs))
		}
	}
	close(proceed)

	run := <-done
	if run.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if len(run.CompanyBreakdowns) != len(companyIDs) {
		t.Fatalf("breakdowns = %d, want %d", len(run.CompanyBreakdowns), len(companyIDs))
	}
	for i, id := range companyIDs {
		if run.CompanyBreakdowns[i].CompanyID != id {
			t.Fatalf("breakdown %d = %s, want %s", i, run.CompanyBreakdowns[i].CompanyID, id)
		}
	}
}

func TestPrepareRejectsDuplicateIdempotencyKey(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "1000", "400", "600", "0", "0"),
	}}
	repo := newStubRunRepo()
	lock := &stubLocker{}
	svc := NewService(ServiceParams{
		Repo:        repo,
		Registry:    &stubRegistry{},
		Aggregator:  agg,
		Lock:        lock,
		Idempotency: &stubIdem{},
	})

	in := runInput(org, alpha)
	in.IdempotencyKey = "req-42"
	if _, err := svc.Prepare(context.Background(), in); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	_, err := svc.Prepare(context.Background(), in)
	if !errors.Is(err, shared.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want idempotency conflict", err)
	}
	if repo.inserted != 1 {
		t.Fatalf("inserted = %d, want 1", repo.inserted)
	}
}

func TestPrepareReleasesClaimWhenInsertFails(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	repo := newStubRunRepo()
	repo.insertErr = errors.New("connection reset by peer")
	idem := &stubIdem{}
	svc := NewService(ServiceParams{
		Repo:        repo,
		Registry:    &stubRegistry{},
		Aggregator:  &stubAggregator{},
		Lock:        &stubLocker{},
		Idempotency: idem,
	})

	in := runInput(org, alpha)
	in.IdempotencyKey = "req-7"
	if _, err := svc.Prepare(context.Background(), in); err == nil {
		t.Fatal("insert failure must surface")
	}
	if len(idem.deleted) != 1 || idem.deleted[0] != "req-7" {
		t.Fatalf("deleted = %v, want the claim released", idem.deleted)
	}

	// The released claim leaves the retry free to succeed.
	repo.insertErr = nil
	if _, err := svc.Prepare(context.Background(), in); err != nil {
		t.Fatalf("retry after release: %v", err)
	}
	if repo.inserted != 1 {
		t.Fatalf("inserted = %d, want 1", repo.inserted)
	}
}

func TestPrepareRejectsUnresolvableCompanies(t *testing.T) {
	repo := newStubRunRepo()
	svc := NewService(ServiceParams{
		Repo:       repo,
		Registry:   &stubRegistry{err: fmt.Errorf("%w: %s", orgs.ErrCompanyInactive, uuid.New())},
		Aggregator: &stubAggregator{},
		Lock:       &stubLocker{},
	})

	_, err := svc.Prepare(context.Background(), runInput(uuid.New(), uuid.New()))
	if !errors.Is(err, orgs.ErrCompanyInactive) {
		t.Fatalf("err = %v, want company inactive", err)
	}
	if repo.inserted != 0 {
		t.Fatal("no run should be inserted when companies fail to resolve")
	}
}

func TestRunDefaultsNameAndPeriodEnd(t *testing.T) {
	org := uuid.New()
	alpha := uuid.New()

	agg := &stubAggregator{snapshots: map[uuid.UUID]trialbalance.Snapshot{
		alpha: snapshot(t, "1000", "400", "600", "0", "0"),
	}}
	repo := newStubRunRepo()
	svc, lock := newTestService(repo, agg, RunConfig{})

	run, err := svc.Run(context.Background(), RunInput{
		OrganizationID: org,
		FiscalYear:     2026,
		FiscalPeriod:   2,
		CompanyIDs:     []uuid.UUID{alpha},
		ActorID:        uuid.New(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.RunName != "Consolidation 2026-02" {
		t.Fatalf("run name = %q", run.RunName)
	}
	wantEnd := time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)
	if !run.PeriodEndDate.Equal(wantEnd) {
		t.Fatalf("period end = %s, want %s", run.PeriodEndDate, wantEnd)
	}
	wantKey := "consol:run:" + org.String() + ":2026-02:lock"
	if len(lock.acquired) != 1 || lock.acquired[0] != wantKey {
		t.Fatalf("lock keys = %v, want %q", lock.acquired, wantKey)
	}
}
