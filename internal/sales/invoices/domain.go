// Package invoices composes, validates and persists sales invoices.
package invoices

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/totals"
)

// Document collections touched by invoicing.
const (
	CollectionInvoices  = "sales_invoices"
	CollectionPurchases = "purchases_invoices"
	CollectionReturns   = "sales_returns"
)

const (
	// DefaultType is stored on invoices created without an explicit type.
	DefaultType = "sales"
	// SourceAPI marks documents written by this service.
	SourceAPI = "invoicing-api"
)

// Date is a calendar date persisted as YYYY-MM-DD.
type Date time.Time

// NewDate truncates t to its calendar date.
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return Date(fiscal.DateOf(t))
}

// Time returns the date as a UTC midnight time.
func (d Date) Time() time.Time { return time.Time(d) }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return time.Time(d).IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return time.Time(d).Format(time.DateOnly)
}

// MarshalJSON renders the date as YYYY-MM-DD, or an empty string when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD, RFC3339 text or an empty string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	t, ok := docstore.ParseDate(s)
	if !ok {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = Date(t)
	return nil
}

// LineItem is one product on an invoice. Derived amounts are always
// recomputed from quantity, price and the two percents.
type LineItem struct {
	ItemID          string  `json:"itemId,omitempty"`
	ItemNumber      string  `json:"itemNumber"`
	ItemName        string  `json:"itemName"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discountPercent"`
	DiscountValue   float64 `json:"discountValue"`
	TaxPercent      float64 `json:"taxPercent"`
	TaxValue        float64 `json:"taxValue"`
	Total           float64 `json:"total"`
	WarehouseID     string  `json:"warehouseId,omitempty"`
}

func (l *LineItem) recompute() {
	a := totals.ComputeLine(l.Quantity, l.Price, l.DiscountPercent, l.TaxPercent)
	l.DiscountValue = a.DiscountValue
	l.TaxValue = a.TaxValue
	l.Total = a.Total
}

func (l LineItem) input() totals.Input {
	return totals.Input{Quantity: l.Quantity, Price: l.Price, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent}
}

// Invoice is a persisted sales invoice. Its JSON form is the flat document
// stored in the sales_invoices collection.
type Invoice struct {
	ID               string                   `json:"-"`
	InvoiceNumber    string                   `json:"invoiceNumber"`
	EntryNumber      string                   `json:"entryNumber"`
	Date             Date                     `json:"date"`
	DueDate          Date                     `json:"dueDate"`
	FiscalYear       int                      `json:"fiscalYear,omitempty"`
	Branch           string                   `json:"branch"`
	Warehouse        string                   `json:"warehouse"`
	MultiWarehouse   bool                     `json:"multiWarehouse,omitempty"`
	CustomerNumber   string                   `json:"customerNumber"`
	CustomerName     string                   `json:"customerName"`
	CommercialRecord string                   `json:"commercialRecord"`
	TaxFile          string                   `json:"taxFile"`
	Delegate         string                   `json:"delegate"`
	PaymentMethod    string                   `json:"paymentMethod"`
	CashBox          string                   `json:"cashBox"`
	MultiplePayment  *payment.MultiplePayment `json:"multiplePayment,omitempty"`
	Items            []LineItem               `json:"items"`
	Totals           totals.Totals            `json:"totals"`
	Type             string                   `json:"type"`
	CreatedAt        time.Time                `json:"createdAt"`
	Source           string                   `json:"source"`
}

type storedInvoice Invoice

// Fields renders the invoice as a document body.
func (inv Invoice) Fields() (docstore.Fields, error) {
	return docstore.FromStruct(storedInvoice(inv))
}

// ComputeTotals sums the line items of inv.
func ComputeTotals(items []LineItem) totals.Totals {
	in := make([]totals.Input, 0, len(items))
	for _, it := range items {
		in = append(in, it.input())
	}
	return totals.Compute(in)
}

// MarshalJSON includes the id, which is not part of the stored body.
func (inv Invoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID string `json:"id,omitempty"`
		storedInvoice
	}{ID: inv.ID, storedInvoice: storedInvoice(inv)})
}
