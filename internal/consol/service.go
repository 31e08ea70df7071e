package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/crestline-fin/crestline/internal/elimination"
	"github.com/crestline-fin/crestline/internal/orgs"
	"github.com/crestline-fin/crestline/internal/platform/cache"
	"github.com/crestline-fin/crestline/internal/shared"
	"github.com/crestline-fin/crestline/internal/trialbalance"
)

// finalizeTimeout bounds the terminal write. A run that did the work must
// never stay running because the caller's context expired.
const finalizeTimeout = 10 * time.Second

// idempotencyScope namespaces run-submission keys in the shared store.
const idempotencyScope = "consolidation:run"

// RegistryReader resolves the companies included in a run.
type RegistryReader interface {
	ResolveRunCompanies(ctx context.Context, orgID uuid.UUID, companyIDs []uuid.UUID) ([]orgs.Company, error)
}

// Aggregator produces one company's trial-balance snapshot for a fiscal
// period.
type Aggregator interface {
	Aggregate(ctx context.Context, companyID uuid.UUID, fiscalYear, fiscalPeriod int) (trialbalance.Snapshot, error)
}

// Locker serializes runs over one organization and fiscal period. Acquire
// returns a release func; ErrPeriodLocked means another run holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// IdempotencyChecker rejects duplicate client submissions. Delete releases
// a claim whose run never got created, so the client's retry is not answered
// with a conflict for work that never started.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// RunRecorder receives per-run outcome metrics.
type RunRecorder interface {
	ObserveRun(status string, seconds float64)
}

// RunConfig carries the tunables applied to every run.
type RunConfig struct {
	// BalanceTolerance bounds |assets - (liabilities + equity)|; a
	// difference at or above it flags the run as out of balance.
	BalanceTolerance decimal.Decimal
	// MaterialityThreshold drops intercompany exposures at or below this
	// value before pairing. Zero or negative keeps everything.
	MaterialityThreshold decimal.Decimal
	// MaxAmbiguousEliminations fails a run that leaves more entries in
	// detected status than this. Negative disables the ceiling.
	MaxAmbiguousEliminations int
	// AggregateConcurrency caps the parallel per-company aggregations.
	AggregateConcurrency int
}

func (c RunConfig) withDefaults() RunConfig {
	if c.BalanceTolerance.Sign() <= 0 {
		c.BalanceTolerance = decimal.NewFromFloat(0.01)
	}
	if c.AggregateConcurrency <= 0 {
		c.AggregateConcurrency = 4
	}
	return c
}

// ServiceParams groups dependencies for NewService.
type ServiceParams struct {
	Repo        Repository
	Registry    RegistryReader
	Aggregator  Aggregator
	Lock        Locker
	Idempotency IdempotencyChecker
	Audit       *shared.AuditLogger
	Cache       *cache.Cache
	Metrics     RunRecorder
	Logger      *slog.Logger
	Config      RunConfig
}

// Service executes consolidation runs: it resolves the requested
// companies, aggregates their trial balances in parallel, nets
// intercompany offsets and persists one immutable run per execution.
type Service struct {
	repo     Repository
	registry RegistryReader
	agg      Aggregator
	lock     Locker
	idem     IdempotencyChecker
	audit    *shared.AuditLogger
	cache    *cache.Cache
	metrics  RunRecorder
	logger   *slog.Logger
	clock    func() time.Time
	cfg      RunConfig
}

// NewService wires the consolidation service.
func NewService(params ServiceParams) *Service {
	return &Service{
		repo:     params.Repo,
		registry: params.Registry,
		agg:      params.Aggregator,
		lock:     params.Lock,
		idem:     params.Idempotency,
		audit:    params.Audit,
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   params.Logger,
		clock:    time.Now,
		cfg:      params.Config.withDefaults(),
	}
}

// WithClock overrides time lookups in tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Prepare validates the input and records a running run. The caller then
// drives it to a terminal state with Execute, inline or from a queued job.
func (s *Service) Prepare(ctx context.Context, in RunInput) (Run, error) {
	if err := in.Validate(); err != nil {
		return Run{}, err
	}
	companies, err := s.registry.ResolveRunCompanies(ctx, in.OrganizationID, in.CompanyIDs)
	if err != nil {
		return Run{}, err
	}
	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyScope); err != nil {
			return Run{}, err
		}
	}

	run := Run{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		FiscalYear:     in.FiscalYear,
		FiscalPeriod:   in.FiscalPeriod,
		PeriodEndDate:  in.PeriodEndDate,
		RunName:        in.RunName,
		CompanyIDs:     in.CompanyIDs,
		Status:         RunStatusRunning,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.repo.InsertRun(ctx, run); err != nil {
		if in.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, in.IdempotencyKey, idempotencyScope); delErr != nil {
				s.log().Warn("release idempotency claim", "key", in.IdempotencyKey, "error", delErr)
			}
		}
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "consolidation.run.start",
		Entity:   "consolidation_run",
		EntityID: run.ID.String(),
		Meta: map[string]any{
			"fiscal_year":   in.FiscalYear,
			"fiscal_period": in.FiscalPeriod,
			"companies":     len(companies),
		},
		At: run.CreatedAt,
	})
	s.log().Info("consolidation run prepared",
		"run_id", run.ID,
		"organization_id", in.OrganizationID,
		"period", shared.PeriodLabel(in.FiscalYear, in.FiscalPeriod),
		"companies", len(companies))
	return run, nil
}

// Execute drives a prepared run to a terminal state. Domain failures end
// in a failed run and a nil error; only infrastructure errors surface, so
// queued deliveries retry exactly the runs that never reached a terminal
// write. Executing a run that is already terminal returns it unchanged.
func (s *Service) Execute(ctx context.Context, runID uuid.UUID) (Run, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if run.Terminal() {
		return run, nil
	}

	started := s.clock()
	release := func() {}
	if s.lock != nil {
		release, err = s.lock.Acquire(ctx, shared.ConsolidationLockKey(run.OrganizationID, run.FiscalYear, run.FiscalPeriod))
		if err != nil {
			if errors.Is(err, ErrPeriodLocked) {
				return s.failRun(ctx, run, started, "another consolidation run holds the period lock")
			}
			return run, fmt.Errorf("acquire period lock: %w", err)
		}
	}
	defer release()

	snapshots, err := s.aggregateAll(ctx, run)
	if err != nil {
		return s.failRun(ctx, run, started, err.Error())
	}
	run.CompanyBreakdowns = snapshots

	entries := elimination.Detect(snapshots, elimination.Config{MaterialityThreshold: s.cfg.MaterialityThreshold})
	for i := range entries {
		entries[i].RunID = run.ID
	}
	run.Eliminations = entries
	run.EliminationCount = len(entries)

	if limit := s.cfg.MaxAmbiguousEliminations; limit >= 0 {
		if ambiguous := elimination.CountByStatus(entries, elimination.StatusDetected); ambiguous > limit {
			return s.failRun(ctx, run, started,
				fmt.Sprintf("%d ambiguous intercompany matches exceed the limit of %d", ambiguous, limit))
		}
	}

	for _, snap := range snapshots {
		run.TotalAssets = run.TotalAssets.Add(snap.TotalAssets)
		run.TotalLiabilities = run.TotalLiabilities.Add(snap.TotalLiabilities)
		run.TotalEquity = run.TotalEquity.Add(snap.TotalEquity)
		run.TotalRevenue = run.TotalRevenue.Add(snap.TotalRevenue)
		run.TotalExpenses = run.TotalExpenses.Add(snap.TotalExpenses)
		run.UnmappedAccountCount += snap.UnmappedAccountCount
	}

	// Eliminations net both sides of each offset, so net income and
	// equity are unchanged by construction.
	arAP, revExp := elimination.EliminatedTotals(entries)
	run.TotalAssets = run.TotalAssets.Sub(arAP)
	run.TotalLiabilities = run.TotalLiabilities.Sub(arAP)
	run.TotalRevenue = run.TotalRevenue.Sub(revExp)
	run.TotalExpenses = run.TotalExpenses.Sub(revExp)
	run.NetIncome = run.TotalRevenue.Sub(run.TotalExpenses)

	// A difference at or above the tolerance is flagged; the run still
	// completes so the imbalance stays visible instead of being plugged.
	diff := run.TotalAssets.Sub(run.TotalLiabilities.Add(run.TotalEquity)).Abs()
	run.Balanced = diff.LessThan(s.cfg.BalanceTolerance)
	if !run.Balanced {
		s.log().Warn("consolidated balance sheet out of balance",
			"run_id", run.ID, "difference", diff.String())
	}

	run.Status = RunStatusCompleted
	if err := s.finalize(ctx, &run, started); err != nil {
		return run, err
	}
	s.log().Info("consolidation run completed",
		"run_id", run.ID,
		"companies", len(snapshots),
		"eliminations", run.EliminationCount,
		"is_balanced", run.Balanced,
		"seconds", run.ProcessingTimeSeconds)
	return run, nil
}

// Run prepares and executes synchronously. Callers wanting queued
// execution call Prepare and enqueue the run id instead.
func (s *Service) Run(ctx context.Context, in RunInput) (Run, error) {
	run, err := s.Prepare(ctx, in)
	if err != nil {
		return Run{}, err
	}
	return s.Execute(ctx, run.ID)
}

// GetRun loads one run with its breakdowns and eliminations. Reads go
// through the versioned cache; finalization bumps the version, so a cached
// running status never outlives the terminal write.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	key, err := s.cache.BuildKey(ctx, "run", id.String())
	if err != nil {
		return Run{}, err
	}
	var run Run
	err = s.cache.FetchJSON(ctx, key, &run, func(ctx context.Context) (interface{}, error) {
		loaded, err := s.repo.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns pages an organization's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]Run, shared.Pagination, error) {
	if orgID == uuid.Nil {
		return nil, shared.Pagination{}, errors.New("consol: organization id is required")
	}
	window := shared.NewPagination(page, perPage, 0)
	runs, total, err := s.repo.ListRuns(ctx, orgID, window)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return runs, shared.NewPagination(page, perPage, total), nil
}

// aggregateAll fans the per-company aggregations out over a bounded
// worker group. Results land at the index of the requesting company so
// breakdown order matches the run's company order.
func (s *Service) aggregateAll(ctx context.Context, run Run) ([]trialbalance.Snapshot, error) {
	snapshots := make([]trialbalance.Snapshot, len(run.CompanyIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AggregateConcurrency)
	for i, companyID := range run.CompanyIDs {
		i, companyID := i, companyID
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("aggregate company %s: panic: %v", companyID, r)
				}
			}()
			snap, aggErr := s.agg.Aggregate(gctx, companyID, run.FiscalYear, run.FiscalPeriod)
			if aggErr != nil {
				return fmt.Errorf("aggregate company %s: %w", companyID, aggErr)
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *Service) failRun(ctx context.Context, run Run, started time.Time, reason string) (Run, error) {
	run.Status = RunStatusFailed
	run.FailureReason = reason
	s.log().Warn("consolidation run failed", "run_id", run.ID, "reason", reason)
	if err := s.finalize(ctx, &run, started); err != nil {
		return run, err
	}
	return run, nil
}

// finalize persists the terminal state and fans out the side effects.
// It runs on a detached context so caller cancellation cannot strand the
// run in running status.
func (s *Service) finalize(ctx context.Context, run *Run, started time.Time) error {
	now := s.clock().UTC()
	run.CompletedAt = &now
	run.ProcessingTimeSeconds = now.Sub(started).Seconds()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := s.repo.FinalizeRun(fctx, *run); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	if err := s.cache.Bump(fctx); err != nil {
		s.log().Warn("consolidation cache bump failed", "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(string(run.Status), run.ProcessingTimeSeconds)
	}
	s.recordAudit(fctx, shared.AuditLog{
		Action:   "consolidation.run.finish",
		Entity:   "consolidation_run",
		EntityID: run.ID.String(),
		Meta: map[string]any{
			"status":      string(run.Status),
			"is_balanced": run.Balanced,
		},
		At: now,
	})
	return nil
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *Service) recordAudit(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log().Warn("audit write failed", "action", entry.Action, "error", err)
	}
}
