package invoices

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
	"github.com/odyssey-erp/odyssey-invoicing/internal/shared"
)

// IdempotencyModule scopes save keys in the idempotency store.
const IdempotencyModule = "sales.invoice.save"

// DraftService is the subset of Service used by the HTTP handler.
type DraftService interface {
	NewDraft(ctx context.Context, fiscalYear int) (*Draft, error)
	GetDraft(ctx context.Context, id string) (*Draft, error)
	DiscardDraft(ctx context.Context, id string) error
	SelectBranch(ctx context.Context, id, branchID string) (*Draft, error)
	UpdateHeader(ctx context.Context, id string, in HeaderInput) (*Draft, error)
	AddItem(ctx context.Context, id string, in ItemInput) (*Draft, error)
	UpdateItem(ctx context.Context, id string, index int, in ItemUpdate) (*Draft, error)
	RemoveItem(ctx context.Context, id string, index int) (*Draft, error)
	SetPayment(ctx context.Context, id string, in PaymentInput) (*Draft, error)
	AutoFillPayment(ctx context.Context, id string, slot payment.Slot) (*Draft, error)
	CheckReady(ctx context.Context, id string) (*Draft, error)
	Save(ctx context.Context, id string) (SaveResult, error)
	LoadForEdit(ctx context.Context, invoiceID string) (*Draft, error)
	PreviewNumbers(ctx context.Context, branchID string) (string, string, error)
	List(ctx context.Context) ([]Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	Delete(ctx context.Context, id string) error
}

// Idempotency records processed save requests.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler serves draft, invoice and numbering endpoints.
type Handler struct {
	logger      *slog.Logger
	service     DraftService
	idempotency Idempotency
	validate    *validator.Validate
}

// NewHandler builds a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service DraftService, idempotency Idempotency) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes attaches the routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/drafts", func(r chi.Router) {
		r.Post("/", h.newDraft)
		r.Get("/{id}", h.getDraft)
		r.Delete("/{id}", h.discardDraft)
		r.Post("/{id}/branch", h.selectBranch)
		r.Put("/{id}/header", h.updateHeader)
		r.Post("/{id}/items", h.addItem)
		r.Put("/{id}/items/{index}", h.updateItem)
		r.Delete("/{id}/items/{index}", h.removeItem)
		r.Put("/{id}/payment", h.setPayment)
		r.Post("/{id}/payment/autofill", h.autoFill)
		r.Post("/{id}/ready", h.checkReady)
		r.Post("/{id}/save", h.save)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/edit", h.edit)
	})
	r.Get("/sequence/next", h.nextNumbers)
}

type newDraftRequest struct {
	FiscalYear int `json:"fiscalYear" validate:"gte=0"`
}

type branchRequest struct {
	Branch string `json:"branch" validate:"required"`
}

type headerRequest struct {
	Warehouse        string `json:"warehouse"`
	MultiWarehouse   bool   `json:"multiWarehouse"`
	CustomerID       string `json:"customerId"`
	CustomerNumber   string `json:"customerNumber"`
	CustomerName     string `json:"customerName"`
	CommercialRecord string `json:"commercialRecord"`
	TaxFile          string `json:"taxFile"`
	Delegate         string `json:"delegate"`
	Type             string `json:"type"`
	Date             string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type itemRequest struct {
	ItemID          string   `json:"itemId" validate:"required"`
	Quantity        float64  `json:"quantity" validate:"gt=0"`
	Price           *float64 `json:"price" validate:"omitempty,gte=0"`
	DiscountPercent float64  `json:"discountPercent" validate:"gte=0,lte=100"`
	WarehouseID     string   `json:"warehouseId"`
}

type itemUpdateRequest struct {
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	Price           float64 `json:"price" validate:"gte=0"`
	DiscountPercent float64 `json:"discountPercent" validate:"gte=0,lte=100"`
}

type paymentRequest struct {
	Method          string                   `json:"paymentMethod" validate:"required"`
	CashBox         string                   `json:"cashBox"`
	MultiplePayment *payment.MultiplePayment `json:"multiplePayment"`
}

type autoFillRequest struct {
	Slot string `json:"slot" validate:"required,oneof=cash bank card"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) newDraft(w http.ResponseWriter, r *http.Request) {
	var req newDraftRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.NewDraft(r.Context(), req.FiscalYear)
	if err != nil {
		h.fail(w, "create draft", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDraft(r.Context(), chi.URLParam(r, "id"))
	h.draftResponse(w, "get draft", d, err)
}

func (h *Handler) discardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardDraft(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "discard draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) selectBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.SelectBranch(r.Context(), chi.URLParam(r, "id"), req.Branch)
	h.draftResponse(w, "select branch", d, err)
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := HeaderInput{
		Warehouse:        req.Warehouse,
		MultiWarehouse:   req.MultiWarehouse,
		CustomerID:       req.CustomerID,
		CustomerNumber:   req.CustomerNumber,
		CustomerName:     req.CustomerName,
		CommercialRecord: req.CommercialRecord,
		TaxFile:          req.TaxFile,
		Delegate:         req.Delegate,
		Type:             req.Type,
	}
	if req.Date != "" {
		in.Date, _ = docstore.ParseDate(req.Date)
	}
	d, err := h.service.UpdateHeader(r.Context(), chi.URLParam(r, "id"), in)
	h.draftResponse(w, "update header", d, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.AddItem(r.Context(), chi.URLParam(r, "id"), ItemInput{
		ItemID:          req.ItemID,
		Quantity:        req.Quantity,
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		WarehouseID:     req.WarehouseID,
	})
	h.draftResponse(w, "add item", d, err)
}

func (h *Handler) itemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	index, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	var req itemUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), index, ItemUpdate(req))
	h.draftResponse(w, "update item", d, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	index, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	d, err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "id"), index)
	h.draftResponse(w, "remove item", d, err)
}

func (h *Handler) setPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.SetPayment(r.Context(), chi.URLParam(r, "id"), PaymentInput{
		Method:   req.Method,
		CashBox:  req.CashBox,
		Multiple: req.MultiplePayment,
	})
	h.draftResponse(w, "set payment", d, err)
}

func (h *Handler) autoFill(w http.ResponseWriter, r *http.Request) {
	var req autoFillRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.AutoFillPayment(r.Context(), chi.URLParam(r, "id"), payment.Slot(req.Slot))
	h.draftResponse(w, "auto-fill payment", d, err)
}

func (h *Handler) checkReady(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.CheckReady(r.Context(), chi.URLParam(r, "id"))
	h.draftResponse(w, "check draft", d, err)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(ctx, key, IdempotencyModule); err != nil {
			h.fail(w, "check idempotency key", err)
			return
		}
	}
	result, err := h.service.Save(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		h.fail(w, "save draft", err)
		return
	}
	status := http.StatusCreated
	if result.Mode == SaveModeUpdate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	page := shared.PaginationFromQuery(r.URL.Query(), len(list))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": list[start:end], "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.LoadForEdit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "load invoice for edit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) nextNumbers(w http.ResponseWriter, r *http.Request) {
	invoiceNumber, entryNumber, err := h.service.PreviewNumbers(r.Context(), r.URL.Query().Get("branch"))
	if err != nil {
		h.fail(w, "preview numbers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoiceNumber": invoiceNumber,
		"entryNumber":   entryNumber,
		"generatedAt":   time.Now().UTC(),
	})
}

func (h *Handler) draftResponse(w http.ResponseWriter, action string, d *Draft, err error) {
	if err != nil {
		h.fail(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	var (
		stock     *StockError
		violation *fiscal.DateViolation
	)
	switch {
	case errors.As(err, &stock):
		httpx.ProblemWithFields(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error(), map[string]string{
			"item":      stock.ItemName,
			"available": strconv.FormatFloat(stock.Available, 'f', -1, 64),
			"requested": strconv.FormatFloat(stock.Requested, 'f', -1, 64),
		})
	case errors.As(err, &violation):
		fields := map[string]string{"bound": string(violation.Bound)}
		if !violation.Limit.IsZero() {
			fields["limit"] = violation.Limit.Format(time.DateOnly)
		}
		if violation.Year != 0 {
			fields["year"] = strconv.Itoa(violation.Year)
		}
		title := "Date Outside Financial Year"
		if violation.Bound == fiscal.BoundClosed {
			title = "Financial Year Closed"
		}
		httpx.ProblemWithFields(w, http.StatusUnprocessableEntity, title, err.Error(), fields)
	case errors.Is(err, ErrDraftNotFound), errors.Is(err, ErrInvoiceNotFound):
		httpx.RespondError(w, httpx.Classified(httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrSaveInProgress), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.RespondError(w, httpx.Classified(httpx.ErrConflict, err))
	case errors.Is(err, ErrInvalidItem), errors.Is(err, ErrItemIndex), errors.Is(err, ErrInvalidSlot),
		errors.Is(err, sequence.ErrBranchRequired), errors.Is(err, masterdata.ErrNotFound), errors.Is(err, fiscal.ErrYearNotFound):
		httpx.RespondError(w, httpx.Classified(httpx.ErrValidation, err))
	case errors.Is(err, ErrItemSuspended), errors.Is(err, ErrNoItems), errors.Is(err, ErrPartyRequired), errors.Is(err, fiscal.ErrYearClosed),
		errors.Is(err, ErrWarehouseRequired), isPaymentError(err):
		httpx.RespondError(w, httpx.Classified(httpx.ErrRule, err))
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func isPaymentError(err error) bool {
	for _, target := range []error{
		payment.ErrMethodRequired,
		payment.ErrUnknownMethod,
		payment.ErrCashBoxRequired,
		payment.ErrMultiplePaymentRequired,
		payment.ErrPaymentMismatch,
		payment.ErrNegativeAllocation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
