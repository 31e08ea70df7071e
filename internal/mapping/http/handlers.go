package mappinghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/mapping"
	"github.com/crestline-fin/crestline/internal/orgs"
	"github.com/crestline-fin/crestline/internal/platform/httpx"
)

// SuggestionService produces mapping suggestions for a company.
type SuggestionService interface {
	Suggest(ctx context.Context, companyID uuid.UUID, threshold float64) (mapping.SuggestionBatch, error)
}

// MappingStore owns persisted account mappings.
type MappingStore interface {
	Accept(ctx context.Context, in mapping.AcceptInput) (mapping.AcceptResult, error)
	Get(ctx context.Context, companyID uuid.UUID) ([]mapping.AccountMapping, error)
	Remove(ctx context.Context, companyAccountID, actorID uuid.UUID) error
}

// Handler wires the mapping endpoints.
type Handler struct {
	logger           *slog.Logger
	resolver         SuggestionService
	store            MappingStore
	validator        *validator.Validate
	defaultThreshold float64
}

// NewHandler constructs the mapping HTTP handler. defaultThreshold applies
// when a suggestion request does not carry its own.
func NewHandler(logger *slog.Logger, resolver SuggestionService, store MappingStore, defaultThreshold float64) *Handler {
	return &Handler{
		logger:           logger,
		resolver:         resolver,
		store:            store,
		validator:        validator.New(),
		defaultThreshold: defaultThreshold,
	}
}

// MountRoutes registers mapping routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/mappings", func(r chi.Router) {
		r.Post("/", h.handleAccept)
		r.Delete("/{companyAccountID}", h.handleRemove)
		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Get("/", h.handleList)
			r.Post("/suggestions", h.handleSuggest)
		})
	})
}

type suggestRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold" validate:"omitempty,gte=0,lte=1"`
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.uuidParam(w, r, "companyID")
	if !ok {
		return
	}

	threshold := h.defaultThreshold
	if r.Body != nil && r.ContentLength != 0 {
		var req suggestRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httpx.ValidationProblem(w, validationFields(err))
			return
		}
		if req.ConfidenceThreshold != nil {
			threshold = *req.ConfidenceThreshold
		}
	}

	batch, err := h.resolver.Suggest(r.Context(), companyID, threshold)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

type acceptRequest struct {
	CompanyAccountID uuid.UUID `json:"company_account_id" validate:"required"`
	MasterAccountID  uuid.UUID `json:"master_account_id" validate:"required"`
	ConfidenceScore  float64   `json:"confidence_score" validate:"gte=0,lte=1"`
	Source           string    `json:"source" validate:"required,oneof=ai manual"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, validationFields(err))
		return
	}
	source, err := mapping.ParseSource(req.Source)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Source", err.Error())
		return
	}

	result, err := h.store.Accept(r.Context(), mapping.AcceptInput{
		CompanyAccountID: req.CompanyAccountID,
		MasterAccountID:  req.MasterAccountID,
		ConfidenceScore:  req.ConfidenceScore,
		Source:           source,
		ActorID:          actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.uuidParam(w, r, "companyID")
	if !ok {
		return
	}
	mappings, err := h.store.Get(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	companyAccountID, ok := h.uuidParam(w, r, "companyAccountID")
	if !ok {
		return
	}
	if err := h.store.Remove(r.Context(), companyAccountID, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	case errors.Is(err, orgs.ErrCompanyNotFound):
		httpx.Problem(w, http.StatusNotFound, "Company Not Found", err.Error())
	case errors.Is(err, mapping.ErrMappingNotFound):
		httpx.Problem(w, http.StatusNotFound, "Mapping Not Found", err.Error())
	case errors.Is(err, chart.ErrMasterAccountNotFound),
		errors.Is(err, chart.ErrCompanyAccountNotFound),
		errors.Is(err, mapping.ErrMasterAccountInactive):
		httpx.Problem(w, http.StatusConflict, "Account Unavailable", err.Error())
	case errors.Is(err, mapping.ErrEmptyMasterChart):
		httpx.Problem(w, http.StatusConflict, "Master Chart Empty", err.Error())
	case errors.Is(err, mapping.ErrInvalidThreshold),
		errors.Is(err, mapping.ErrInvalidConfidence),
		errors.Is(err, mapping.ErrInvalidSource):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.log().Error("mapping request failed", "error", err)
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
