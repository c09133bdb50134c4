package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// Handler exposes the lookup lists an invoice form needs.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory) *Handler {
	return &Handler{logger: logger, directory: directory}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/branches", h.listBranches)
	r.Get("/branches/{id}/warehouses", h.listBranchWarehouses)
	r.Get("/items/{id}", h.showItem)
	r.Get("/customers/{id}", h.showCustomer)
	r.Get("/payment-methods", h.listPaymentMethods)
	r.Get("/cash-boxes", h.listCashBoxes)
	r.Get("/banks", h.listBanks)
	r.Get("/delegates", h.listDelegates)
	r.Post("/cache/invalidate", h.invalidate)
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Branches(r.Context())
	h.respond(w, "list branches", map[string]any{"branches": list}, err)
}

func (h *Handler) listBranchWarehouses(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.WarehousesForBranch(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, "list branch warehouses", map[string]any{"warehouses": list}, err)
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.directory.Item(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, "show item", item, err)
}

func (h *Handler) showCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.directory.Customer(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, "show customer", customer, err)
}

func (h *Handler) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.PaymentMethods(r.Context())
	h.respond(w, "list payment methods", map[string]any{"paymentMethods": list}, err)
}

func (h *Handler) listCashBoxes(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.CashBoxes(r.Context())
	h.respond(w, "list cash boxes", map[string]any{"cashBoxes": list}, err)
}

func (h *Handler) listBanks(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Banks(r.Context())
	h.respond(w, "list banks", map[string]any{"banks": list}, err)
}

func (h *Handler) listDelegates(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Delegates(r.Context())
	h.respond(w, "list delegates", map[string]any{"delegates": list}, err)
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Invalidate(r.Context()); err != nil {
		h.logger.Error("invalidate masterdata cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respond(w http.ResponseWriter, action string, body any, err error) {
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, body)
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Classified(httpx.ErrNotFound, err))
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
