package consolhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/crestline-fin/crestline/internal/consol"
	"github.com/crestline-fin/crestline/internal/orgs"
	"github.com/crestline-fin/crestline/internal/platform/httpx"
	"github.com/crestline-fin/crestline/internal/shared"
)

// RunService is the consolidation surface the handler drives.
type RunService interface {
	Prepare(ctx context.Context, in consol.RunInput) (consol.Run, error)
	Run(ctx context.Context, in consol.RunInput) (consol.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (consol.Run, error)
	ListRuns(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]consol.Run, shared.Pagination, error)
}

// RunEnqueuer hands a prepared run to the background queue.
type RunEnqueuer interface {
	EnqueueConsolidationRun(ctx context.Context, runID uuid.UUID) error
}

// Handler wires the consolidation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   RunService
	enqueuer  RunEnqueuer
	validator *validator.Validate
	flight    singleflight.Group
}

// NewHandler constructs the consolidation HTTP handler. enqueuer may be
// nil when no worker transport is configured; async requests then fail
// with 503 instead of silently running inline.
func NewHandler(logger *slog.Logger, service RunService, enqueuer RunEnqueuer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers consolidation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidation/runs", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{runID}", h.handleGet)
		r.Get("/{runID}/export.csv", h.handleExportCSV)
	})
}

type createRunRequest struct {
	OrganizationID uuid.UUID   `json:"organization_id" validate:"required"`
	RunName        string      `json:"run_name" validate:"omitempty,max=120"`
	FiscalYear     int         `json:"fiscal_year" validate:"required,gte=2000,lte=2100"`
	FiscalPeriod   int         `json:"fiscal_period" validate:"required,gte=1,lte=12"`
	PeriodEndDate  string      `json:"period_end_date" validate:"omitempty,datetime=2006-01-02"`
	CompanyIDs     []uuid.UUID `json:"company_ids" validate:"required,min=1"`
	Async          bool        `json:"async"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, validationFields(err))
		return
	}

	in := consol.RunInput{
		OrganizationID: req.OrganizationID,
		FiscalYear:     req.FiscalYear,
		FiscalPeriod:   req.FiscalPeriod,
		CompanyIDs:     req.CompanyIDs,
		RunName:        req.RunName,
		ActorID:        actorID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.PeriodEndDate != "" {
		end, err := time.Parse("2006-01-02", req.PeriodEndDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Period End Date", err.Error())
			return
		}
		in.PeriodEndDate = end
	}

	if req.Async {
		h.createAsync(w, r, in)
		return
	}
	run, err := h.service.Run(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) createAsync(w http.ResponseWriter, r *http.Request, in consol.RunInput) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable",
			"async execution is not configured")
		return
	}
	run, err := h.service.Prepare(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.enqueuer.EnqueueConsolidationRun(r.Context(), run.ID); err != nil {
		h.log().Error("enqueue consolidation run failed", "run_id", run.ID, "error", err)
		httpx.Problem(w, http.StatusBadGateway, "Enqueue Failed",
			"run "+run.ID.String()+" was created but could not be queued")
		return
	}
	httpx.JSON(w, http.StatusAccepted, run)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.URL.Query().Get("organization_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "organization_id must be a uuid")
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)

	runs, pagination, err := h.service.ListRuns(r.Context(), orgID, page, perPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"runs":       runs,
		"pagination": pagination,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.uuidParam(w, r, "runID")
	if !ok {
		return
	}
	run, err := h.loadRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.uuidParam(w, r, "runID")
	if !ok {
		return
	}
	run, err := h.loadRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="consolidation-run-`+run.ID.String()+`.csv"`)
	if err := writeRunCSV(w, run); err != nil {
		h.log().Error("stream run csv failed", "run_id", run.ID, "error", err)
	}
}

// loadRun collapses concurrent reads of the same run into one service
// call. Pollers tend to pile up on a running consolidation.
func (h *Handler) loadRun(ctx context.Context, id uuid.UUID) (consol.Run, error) {
	ch := h.flight.DoChan("run:"+id.String(), func() (interface{}, error) {
		return h.service.GetRun(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return consol.Run{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return consol.Run{}, res.Err
		}
		return res.Val.(consol.Run), nil
	}
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", name+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consol.ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Run Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, consol.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, orgs.ErrOrganizationNotFound),
		errors.Is(err, orgs.ErrCompanyNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, orgs.ErrCompanyNotInOrganization),
		errors.Is(err, orgs.ErrCompanyInactive),
		errors.Is(err, consol.ErrDuplicateCompany),
		errors.Is(err, consol.ErrNoCompanies),
		errors.Is(err, consol.ErrPeriodEndMismatch),
		errors.Is(err, shared.ErrInvalidFiscalYear),
		errors.Is(err, shared.ErrInvalidFiscalPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.log().Error("consolidation request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func (h *Handler) log() *slog.Logger {
	if h.logger == nil {
		return slog.Default()
	}
	return h.logger
}

// actorID reads the optional X-Actor-ID header set by the edge proxy.
func actorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = "failed on " + fe.Tag()
		}
		return fields
	}
	fields["body"] = err.Error()
	return fields
}
