package invoices

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvoiceNotFound   = errors.New("invoices: invoice not found")
	ErrDraftNotFound     = errors.New("invoices: draft not found")
	ErrInvalidState      = errors.New("invoices: operation not allowed in the current draft state")
	ErrInvalidItem       = errors.New("invoices: invalid line item")
	ErrItemIndex         = errors.New("invoices: line item index out of range")
	ErrItemSuspended     = errors.New("invoices: item is temporarily suspended")
	ErrInsufficientStock = errors.New("invoices: insufficient stock")
	ErrNoItems           = errors.New("invoices: at least one line item is required")
	ErrPartyRequired     = errors.New("invoices: branch, customer or warehouse is required")
	ErrWarehouseRequired = errors.New("invoices: warehouse is required")
	ErrSaveInProgress    = errors.New("invoices: a save is already in progress")
)

// StockError reports how much of an item is available against the quantity
// requested.
type StockError struct {
	ItemName  string
	Warehouse string
	Available float64
	Requested float64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.ItemName,
		strconv.FormatFloat(e.Available, 'f', -1, 64),
		strconv.FormatFloat(e.Requested, 'f', -1, 64))
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
