package fiscal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// LifecycleService is the subset of Service used by the HTTP handler.
type LifecycleService interface {
	List(ctx context.Context) ([]FinancialYear, error)
	Create(ctx context.Context, in CreateInput) (FinancialYear, error)
	Close(ctx context.Context, id string) (CloseResult, error)
	Delete(ctx context.Context, id string) error
	SetCurrent(year int) (FinancialYear, error)
	Registry() *Registry
}

// Handler serves financial year endpoints.
type Handler struct {
	logger   *slog.Logger
	service  LifecycleService
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service LifecycleService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches financial year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/active", h.active)
	r.Get("/current", h.current)
	r.Put("/current", h.setCurrent)
	r.Get("/current/validate", h.validateDate)
	r.Post("/{id}/close", h.close)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	Year      int    `json:"year" validate:"required,gte=1900,lte=9999"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

type setCurrentRequest struct {
	Year int `json:"year" validate:"required"`
}

type validationResponse struct {
	Valid     bool           `json:"valid"`
	Clamped   string         `json:"clamped"`
	Violation *DateViolation `json:"violation,omitempty"`
	Message   string         `json:"message,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list financial years", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"years": years})
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"years": h.service.Registry().ListActiveYears()})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	start, _ := docstore.ParseDate(req.StartDate)
	end, _ := docstore.ParseDate(req.EndDate)
	fy, err := h.service.Create(r.Context(), CreateInput{Year: req.Year, StartDate: start, EndDate: end})
	if err != nil {
		h.fail(w, "create financial year", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fy)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	fy, ok := h.service.Registry().Current()
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", ErrNoActiveYear.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, fy)
}

func (h *Handler) setCurrent(w http.ResponseWriter, r *http.Request) {
	var req setCurrentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	fy, err := h.service.SetCurrent(req.Year)
	if err != nil {
		h.fail(w, "set current financial year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fy)
}

func (h *Handler) validateDate(w http.ResponseWriter, r *http.Request) {
	date, ok := docstore.ParseDate(r.URL.Query().Get("date"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be formatted as YYYY-MM-DD")
		return
	}
	window := h.service.Registry().Window()
	resp := validationResponse{Valid: true, Clamped: window.Clamp(date).Format(time.DateOnly)}
	if v := window.Validate(date); v != nil {
		resp.Valid = false
		resp.Violation = v
		resp.Message = v.Error()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "close financial year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete financial year", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrYearNotFound):
		httpx.RespondError(w, httpx.Classified(httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateYear):
		httpx.RespondError(w, httpx.Classified(httpx.ErrDuplicate, err))
	case errors.Is(err, ErrInvalidInput):
		httpx.RespondError(w, httpx.Classified(httpx.ErrValidation, err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.RespondError(w, httpx.Classified(httpx.ErrConflict, err))
	case errors.Is(err, ErrYearClosed):
		httpx.RespondError(w, httpx.Classified(httpx.ErrRule, err))
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
