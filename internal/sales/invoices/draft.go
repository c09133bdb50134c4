package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/totals"
)

// State is the lifecycle position of a draft.
type State string

const (
	StateEmpty   State = "empty"
	StateEditing State = "editing"
	StateReady   State = "ready_to_save"
	StateSaved   State = "saved"
)

// Header holds the invoice fields that are not line items.
type Header struct {
	Branch           string                   `json:"branch"`
	Warehouse        string                   `json:"warehouse"`
	MultiWarehouse   bool                     `json:"multiWarehouse"`
	CustomerID       string                   `json:"customerId,omitempty"`
	CustomerNumber   string                   `json:"customerNumber"`
	CustomerName     string                   `json:"customerName"`
	CommercialRecord string                   `json:"commercialRecord"`
	TaxFile          string                   `json:"taxFile"`
	Delegate         string                   `json:"delegate"`
	Type             string                   `json:"type"`
	Date             Date                     `json:"date"`
	DueDate          Date                     `json:"dueDate"`
	PaymentMethod    string                   `json:"paymentMethod"`
	CashBox          string                   `json:"cashBox"`
	MultiplePayment  *payment.MultiplePayment `json:"multiplePayment,omitempty"`
}

// Draft is an invoice being composed. Every mutation goes through the
// service, which works on a clone and stores it only when the step succeeds.
type Draft struct {
	ID               string        `json:"id"`
	State            State         `json:"state"`
	FiscalYear       int           `json:"fiscalYear"`
	Window           fiscal.Window `json:"window"`
	Header           Header        `json:"header"`
	Items            []LineItem    `json:"items"`
	Totals           totals.Totals `json:"totals"`
	InvoiceNumber    string        `json:"invoiceNumber"`
	EntryNumber      string        `json:"entryNumber"`
	StagedBranch     string        `json:"stagedBranch,omitempty"`
	EditingInvoiceID string        `json:"editingInvoiceId,omitempty"`
	LastSavedID      string        `json:"lastSavedId,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	Saving           bool          `json:"saving"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	out := *d
	out.Items = append([]LineItem(nil), d.Items...)
	out.Header.MultiplePayment = cloneMultiple(d.Header.MultiplePayment)
	return &out
}

func cloneMultiple(m *payment.MultiplePayment) *payment.MultiplePayment {
	if m == nil {
		return nil
	}
	out := &payment.MultiplePayment{}
	if m.Cash != nil {
		c := *m.Cash
		out.Cash = &c
	}
	if m.Bank != nil {
		b := *m.Bank
		out.Bank = &b
	}
	if m.Card != nil {
		c := *m.Card
		out.Card = &c
	}
	return out
}

// Editing reports whether the draft accepts field and line mutations.
func (d *Draft) Editing() bool {
	return d.State == StateEditing || d.State == StateReady
}

func (d *Draft) requireEditing() error {
	if !d.Editing() {
		return fmt.Errorf("%w: draft is %s", ErrInvalidState, d.State)
	}
	if d.Saving {
		return ErrSaveInProgress
	}
	return nil
}

// touched drops a ready draft back to editing after a mutation.
func (d *Draft) touched(now time.Time) {
	d.State = StateEditing
	d.Totals = ComputeTotals(d.Items)
	d.UpdatedAt = now
}

func validateLine(item LineItem) error {
	switch {
	case strings.TrimSpace(item.ItemName) == "":
		return fmt.Errorf("%w: item name is required", ErrInvalidItem)
	case item.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidItem)
	case item.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
	case item.DiscountPercent < 0 || item.DiscountPercent > 100:
		return fmt.Errorf("%w: discount percent must be between 0 and 100", ErrInvalidItem)
	}
	return nil
}

func (d *Draft) addItem(item LineItem, now time.Time) error {
	if err := validateLine(item); err != nil {
		return err
	}
	item.recompute()
	d.Items = append(d.Items, item)
	d.touched(now)
	return nil
}

func (d *Draft) updateItem(index int, item LineItem, now time.Time) error {
	if index < 0 || index >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	if err := validateLine(item); err != nil {
		return err
	}
	item.recompute()
	d.Items[index] = item
	d.touched(now)
	return nil
}

func (d *Draft) removeItem(index int, now time.Time) error {
	if index < 0 || index >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	d.Items = append(d.Items[:index], d.Items[index+1:]...)
	d.touched(now)
	return nil
}

// lineWarehouse is the warehouse stock is drawn from for item.
func (d *Draft) lineWarehouse(item LineItem) string {
	if d.Header.MultiWarehouse && item.WarehouseID != "" {
		return item.WarehouseID
	}
	return d.Header.Warehouse
}

// quantityOnDraft sums the quantity of itemName drawn from warehouse,
// skipping the line at skip (-1 skips nothing).
func (d *Draft) quantityOnDraft(itemName, warehouse string, skip int) float64 {
	var sum float64
	for i, it := range d.Items {
		if i == skip || it.ItemName != itemName || d.lineWarehouse(it) != warehouse {
			continue
		}
		sum += it.Quantity
	}
	return sum
}

// checkReady applies the editing to ready_to_save guard. On failure the
// state stays editing.
func (d *Draft) checkReady(rec *payment.Reconciler) error {
	if err := d.requireEditing(); err != nil {
		return err
	}
	d.State = StateEditing
	if len(d.Items) == 0 {
		return ErrNoItems
	}
	h := d.Header
	if h.Branch == "" && strings.TrimSpace(h.CustomerName) == "" && h.Warehouse == "" && !h.MultiWarehouse {
		return ErrPartyRequired
	}
	if v := d.Window.Validate(h.Date.Time()); v != nil {
		return v
	}
	d.Totals = ComputeTotals(d.Items)
	if res := rec.Reconcile(d.Totals.AfterTax, h.PaymentMethod, h.CashBox, h.MultiplePayment); !res.OK {
		return res.Err()
	}
	d.State = StateReady
	return nil
}

// invoice renders the draft as the document to persist.
func (d *Draft) invoice(now time.Time) Invoice {
	h := d.Header
	inv := Invoice{
		ID:               d.EditingInvoiceID,
		InvoiceNumber:    d.InvoiceNumber,
		EntryNumber:      d.EntryNumber,
		Date:             h.Date,
		DueDate:          h.DueDate,
		FiscalYear:       d.Window.Year.Year,
		Branch:           h.Branch,
		Warehouse:        h.Warehouse,
		MultiWarehouse:   h.MultiWarehouse,
		CustomerNumber:   h.CustomerNumber,
		CustomerName:     h.CustomerName,
		CommercialRecord: h.CommercialRecord,
		TaxFile:          h.TaxFile,
		Delegate:         h.Delegate,
		PaymentMethod:    h.PaymentMethod,
		Items:            append([]LineItem(nil), d.Items...),
		Totals:           ComputeTotals(d.Items),
		Type:             h.Type,
		CreatedAt:        d.CreatedAt,
		Source:           SourceAPI,
	}
	switch h.PaymentMethod {
	case payment.MethodCash:
		inv.CashBox = h.CashBox
	case payment.MethodMultiple:
		inv.MultiplePayment = cloneMultiple(h.MultiplePayment)
	}
	if inv.Type == "" {
		inv.Type = DefaultType
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	return inv
}

// resetAfterSave empties the draft and stages the next numbers for branch.
func (d *Draft) resetAfterSave(branch, invoiceNumber, entryNumber, savedID string, now time.Time) {
	*d = Draft{
		ID:            d.ID,
		State:         StateEmpty,
		FiscalYear:    d.FiscalYear,
		Window:        d.Window,
		Header:        Header{Date: d.Header.Date, DueDate: d.Header.DueDate, PaymentMethod: payment.MethodCash},
		InvoiceNumber: invoiceNumber,
		EntryNumber:   entryNumber,
		StagedBranch:  branch,
		LastSavedID:   savedID,
		UpdatedAt:     now,
	}
}

// loadInvoice replaces the draft with a persisted invoice opened for editing.
func (d *Draft) loadInvoice(inv Invoice, window fiscal.Window, now time.Time) {
	*d = Draft{
		ID:         d.ID,
		State:      StateEditing,
		FiscalYear: inv.FiscalYear,
		Window:     window,
		Header: Header{
			Branch:           inv.Branch,
			Warehouse:        inv.Warehouse,
			MultiWarehouse:   inv.MultiWarehouse,
			CustomerNumber:   inv.CustomerNumber,
			CustomerName:     inv.CustomerName,
			CommercialRecord: inv.CommercialRecord,
			TaxFile:          inv.TaxFile,
			Delegate:         inv.Delegate,
			Type:             inv.Type,
			Date:             inv.Date,
			DueDate:          inv.DueDate,
			PaymentMethod:    inv.PaymentMethod,
			CashBox:          inv.CashBox,
			MultiplePayment:  cloneMultiple(inv.MultiplePayment),
		},
		Items:            append([]LineItem(nil), inv.Items...),
		InvoiceNumber:    inv.InvoiceNumber,
		EntryNumber:      inv.EntryNumber,
		EditingInvoiceID: inv.ID,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        now,
	}
	d.Totals = ComputeTotals(d.Items)
}
