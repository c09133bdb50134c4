package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
	"github.com/odyssey-erp/odyssey-invoicing/internal/shared"
)

// ErrInvalidSlot is returned when auto-fill names an unknown payment slot.
var ErrInvalidSlot = errors.New("invoices: unknown payment slot")

// InvoiceStore is the persistence boundary the service depends on.
type InvoiceStore interface {
	Insert(ctx context.Context, inv Invoice) (string, error)
	UpdateByID(ctx context.Context, id string, inv Invoice) error
	ListAll(ctx context.Context) ([]Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	DeleteByID(ctx context.Context, id string) error
	QueryStockMovements(ctx context.Context, itemName, warehouseID, excludeID string) (StockMovements, error)
}

// MasterData resolves the reference entities a draft points at.
type MasterData interface {
	LinkedWarehouse(ctx context.Context, branchID string) (masterdata.Warehouse, bool, error)
	CurrentItem(ctx context.Context, id string) (masterdata.Item, error)
	TaxRate(ctx context.Context) (float64, error)
	Customer(ctx context.Context, id string) (masterdata.Customer, error)
	PaymentMethods(ctx context.Context) ([]string, error)
}

// Numberer issues invoice and entry numbers. The Peek methods stage numbers
// for display; the Next methods consume them.
type Numberer interface {
	NextInvoiceNumber(ctx context.Context, branchID string) (string, error)
	NextEntryNumber(ctx context.Context, branchID string) (string, error)
	PeekInvoiceNumber(ctx context.Context, branchID string) (string, error)
	PeekEntryNumber(ctx context.Context, branchID string) (string, error)
}

// Locker guards a save against a concurrent one for the same draft.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context), error)
}

// DuplicateScanner schedules a duplicate number scan after a save.
type DuplicateScanner interface {
	EnqueueDuplicateScan(ctx context.Context, branchID string, year int) error
}

// SaveRecorder observes persisted invoices.
type SaveRecorder interface {
	RecordInvoiceSaved(mode string)
}

// Config tunes draft behaviour.
type Config struct {
	DueDays          int
	AutoCorrectDates bool
}

// Save modes reported to the recorder.
const (
	SaveModeCreate = "create"
	SaveModeUpdate = "update"
)

// HeaderInput replaces the editable header fields of a draft. A zero Date
// keeps the current date.
type HeaderInput struct {
	Warehouse        string
	MultiWarehouse   bool
	CustomerID       string
	CustomerNumber   string
	CustomerName     string
	CommercialRecord string
	TaxFile          string
	Delegate         string
	Type             string
	Date             time.Time
}

// ItemInput adds a catalog item. A nil Price uses the catalog sale price.
type ItemInput struct {
	ItemID          string
	Quantity        float64
	Price           *float64
	DiscountPercent float64
	WarehouseID     string
}

// ItemUpdate edits the editable values of a line.
type ItemUpdate struct {
	Quantity        float64
	Price           float64
	DiscountPercent float64
}

// PaymentInput selects how the invoice is settled.
type PaymentInput struct {
	Method   string
	CashBox  string
	Multiple *payment.MultiplePayment
}

// SaveResult is the outcome of a successful save.
type SaveResult struct {
	Invoice Invoice `json:"invoice"`
	Draft   *Draft  `json:"draft"`
	Mode    string  `json:"mode"`
}

// Service orchestrates drafts from branch selection to persistence.
type Service struct {
	store    InvoiceStore
	drafts   DraftStore
	registry *fiscal.Registry
	numbers  Numberer
	master   MasterData
	locker   Locker
	scanner  DuplicateScanner
	recorder SaveRecorder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	savingMu sync.Mutex
	saving   map[string]bool
}

// NewService wires the invoicing service.
func NewService(store InvoiceStore, drafts DraftStore, registry *fiscal.Registry, numbers Numberer, master MasterData, locker Locker, cfg Config, logger *slog.Logger) *Service {
	if cfg.DueDays <= 0 {
		cfg.DueDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		drafts:   drafts,
		registry: registry,
		numbers:  numbers,
		master:   master,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		saving:   make(map[string]bool),
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithScanner attaches the duplicate number scan scheduler.
func (s *Service) WithScanner(scanner DuplicateScanner) {
	s.scanner = scanner
}

// WithRecorder attaches a save observer.
func (s *Service) WithRecorder(r SaveRecorder) {
	s.recorder = r
}

// NewDraft starts an empty draft validated against fiscalYear, or against
// the registry's current year when fiscalYear is 0. A closed year is refused.
func (s *Service) NewDraft(ctx context.Context, fiscalYear int) (*Draft, error) {
	window := s.registry.Window()
	if fiscalYear != 0 {
		w, err := s.registry.WindowFor(fiscalYear)
		if err != nil {
			return nil, err
		}
		if !w.Active() {
			return nil, fmt.Errorf("%w: %d", fiscal.ErrYearClosed, fiscalYear)
		}
		window = w
	}
	now := s.now()
	date := window.Clamp(fiscal.DateOf(now))
	d := &Draft{
		ID:         s.newID(),
		State:      StateEmpty,
		FiscalYear: fiscalYear,
		Window:     window,
		Header: Header{
			Type:          DefaultType,
			Date:          NewDate(date),
			DueDate:       NewDate(window.DueDate(date, s.cfg.DueDays)),
			PaymentMethod: payment.MethodCash,
		},
		UpdatedAt: now,
	}
	if err := s.drafts.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDraft loads a draft.
func (s *Service) GetDraft(ctx context.Context, id string) (*Draft, error) {
	return s.drafts.Get(ctx, id)
}

// DiscardDraft drops a draft.
func (s *Service) DiscardDraft(ctx context.Context, id string) error {
	return s.drafts.Delete(ctx, id)
}

// mutate applies fn to a copy of the stored draft and stores the copy only
// when fn succeeds.
func (s *Service) mutate(ctx context.Context, id string, fn func(d *Draft) error) (*Draft, error) {
	stored, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	work := stored.Clone()
	s.refreshWindow(work)
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = s.now()
	if err := s.drafts.Put(ctx, work); err != nil {
		return nil, err
	}
	return work, nil
}

// refreshWindow re-reads the fiscal window. Drafts following the current
// year have their date pulled back inside it.
func (s *Service) refreshWindow(d *Draft) {
	if d.FiscalYear == 0 {
		d.Window = s.registry.Window()
		if date := d.Header.Date.Time(); d.Window.Set && !d.Header.Date.IsZero() && !d.Window.Contains(date) {
			clamped := d.Window.Clamp(date)
			d.Header.Date = NewDate(clamped)
			d.Header.DueDate = NewDate(d.Window.DueDate(clamped, s.cfg.DueDays))
		}
		return
	}
	if w, err := s.registry.WindowFor(d.FiscalYear); err == nil {
		d.Window = w
	}
}

// SelectBranch moves an empty draft to editing, fetches its numbers and
// picks the warehouse linked to the branch when there is exactly one.
func (s *Service) SelectBranch(ctx context.Context, id, branchID string) (*Draft, error) {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return nil, sequence.ErrBranchRequired
	}
	return s.mutate(ctx, id, func(d *Draft) error {
		if d.State == StateSaved {
			return fmt.Errorf("%w: draft is %s", ErrInvalidState, d.State)
		}
		if d.Saving {
			return ErrSaveInProgress
		}
		changed := d.Header.Branch != branchID
		if d.EditingInvoiceID == "" {
			if branchID != d.StagedBranch || d.InvoiceNumber == "" {
				invoiceNumber, err := s.numbers.PeekInvoiceNumber(ctx, branchID)
				if err != nil {
					return err
				}
				entryNumber, err := s.numbers.PeekEntryNumber(ctx, branchID)
				if err != nil {
					return err
				}
				d.InvoiceNumber, d.EntryNumber = invoiceNumber, entryNumber
			}
			d.StagedBranch = ""
		}
		d.Header.Branch = branchID
		wh, ok, err := s.master.LinkedWarehouse(ctx, branchID)
		switch {
		case err != nil:
			s.logger.Warn("resolve linked warehouse", slog.String("branch_id", branchID), slog.Any("error", err))
		case ok:
			d.Header.Warehouse = wh.ID
		case changed:
			d.Header.Warehouse = ""
		}
		d.touched(s.now())
		return nil
	})
}

// UpdateHeader replaces the header fields. Dates outside the fiscal window
// are rejected, or moved onto the nearest bound when auto-correction is on.
func (s *Service) UpdateHeader(ctx context.Context, id string, in HeaderInput) (*Draft, error) {
	var customer *masterdata.Customer
	if in.CustomerID != "" {
		c, err := s.master.Customer(ctx, in.CustomerID)
		if err != nil {
			return nil, err
		}
		customer = &c
	}
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		h := &d.Header
		if !in.Date.IsZero() {
			date := fiscal.DateOf(in.Date)
			if v := d.Window.Validate(date); v != nil {
				if !s.cfg.AutoCorrectDates || !d.Window.Active() {
					return v
				}
				date = d.Window.Clamp(date)
			}
			h.Date = NewDate(date)
			h.DueDate = NewDate(d.Window.DueDate(date, s.cfg.DueDays))
		}
		h.Warehouse = in.Warehouse
		h.MultiWarehouse = in.MultiWarehouse
		h.Delegate = in.Delegate
		if in.Type != "" {
			h.Type = in.Type
		}
		h.CustomerID = in.CustomerID
		if customer != nil {
			h.CustomerNumber = customer.Number
			h.CustomerName = customer.Name
			h.CommercialRecord = customer.CommercialRecord
			h.TaxFile = customer.TaxFile
		} else {
			h.CustomerNumber = in.CustomerNumber
			h.CustomerName = in.CustomerName
			h.CommercialRecord = in.CommercialRecord
			h.TaxFile = in.TaxFile
		}
		d.touched(s.now())
		return nil
	})
}

// AddItem appends a catalog item after the suspension and stock gates.
func (s *Service) AddItem(ctx context.Context, id string, in ItemInput) (*Draft, error) {
	item, err := s.master.CurrentItem(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Suspended() {
		return nil, fmt.Errorf("%w: %s", ErrItemSuspended, item.Name)
	}
	taxRate, err := s.master.TaxRate(ctx)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		line := LineItem{
			ItemID:          item.ID,
			ItemNumber:      item.ItemNumber,
			ItemName:        item.Name,
			Quantity:        in.Quantity,
			Unit:            item.Unit,
			Price:           item.SalePrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      taxRate,
		}
		if in.Price != nil {
			line.Price = *in.Price
		}
		if d.Header.MultiWarehouse {
			line.WarehouseID = in.WarehouseID
		}
		if err := validateLine(line); err != nil {
			return err
		}
		if !item.AllowNegative {
			if err := s.checkStock(ctx, d, line, -1); err != nil {
				return err
			}
		}
		return d.addItem(line, s.now())
	})
}

// UpdateItem edits the line at index.
func (s *Service) UpdateItem(ctx context.Context, id string, index int, in ItemUpdate) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		if index < 0 || index >= len(d.Items) {
			return fmt.Errorf("%w: %d", ErrItemIndex, index)
		}
		line := d.Items[index]
		line.Quantity = in.Quantity
		line.Price = in.Price
		line.DiscountPercent = in.DiscountPercent
		if err := validateLine(line); err != nil {
			return err
		}
		if line.Quantity > d.Items[index].Quantity && line.ItemID != "" {
			item, err := s.master.CurrentItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if !item.AllowNegative {
				if err := s.checkStock(ctx, d, line, index); err != nil {
					return err
				}
			}
		}
		return d.updateItem(index, line, s.now())
	})
}

// RemoveItem drops the line at index.
func (s *Service) RemoveItem(ctx context.Context, id string, index int) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		return d.removeItem(index, s.now())
	})
}

func (s *Service) checkStock(ctx context.Context, d *Draft, line LineItem, skip int) error {
	warehouse := d.lineWarehouse(line)
	if warehouse == "" {
		return ErrWarehouseRequired
	}
	moves, err := s.store.QueryStockMovements(ctx, line.ItemName, warehouse, d.EditingInvoiceID)
	if err != nil {
		return err
	}
	requested := d.quantityOnDraft(line.ItemName, warehouse, skip) + line.Quantity
	if available := moves.Available(); requested > available {
		return &StockError{ItemName: line.ItemName, Warehouse: warehouse, Available: available, Requested: requested}
	}
	return nil
}

// SetPayment records the payment selection. It is checked by CheckReady.
func (s *Service) SetPayment(ctx context.Context, id string, in PaymentInput) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		d.Header.PaymentMethod = strings.TrimSpace(in.Method)
		d.Header.CashBox = in.CashBox
		d.Header.MultiplePayment = cloneMultiple(in.Multiple)
		d.touched(s.now())
		return nil
	})
}

// AutoFillPayment fills an empty slot of the multiple payment with the
// remaining balance when it is positive.
func (s *Service) AutoFillPayment(ctx context.Context, id string, slot payment.Slot) (*Draft, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return s.mutate(ctx, id, func(d *Draft) error {
		if err := d.requireEditing(); err != nil {
			return err
		}
		d.Totals = ComputeTotals(d.Items)
		amount, ok := payment.AutoFill(d.Totals.AfterTax, d.Header.MultiplePayment, slot)
		if !ok {
			return nil
		}
		if d.Header.MultiplePayment == nil {
			d.Header.MultiplePayment = &payment.MultiplePayment{}
		}
		d.Header.MultiplePayment.Set(slot, amount)
		d.touched(s.now())
		return nil
	})
}

func (s *Service) reconciler(ctx context.Context) *payment.Reconciler {
	methods, err := s.master.PaymentMethods(ctx)
	if err != nil {
		s.logger.Warn("load payment methods", slog.Any("error", err))
		return payment.NewReconciler()
	}
	return payment.NewReconciler(methods...)
}

// CheckReady runs the save guard and moves the draft to ready_to_save.
func (s *Service) CheckReady(ctx context.Context, id string) (*Draft, error) {
	rec := s.reconciler(ctx)
	d, err := s.mutate(ctx, id, func(d *Draft) error { return d.checkReady(rec) })
	if err != nil {
		s.dropReady(ctx, id)
		return nil, err
	}
	return d, nil
}

// dropReady moves a stored ready draft back to editing after a failed guard.
func (s *Service) dropReady(ctx context.Context, id string) {
	stored, err := s.drafts.Get(ctx, id)
	if err != nil || stored.State != StateReady {
		return
	}
	stored.State = StateEditing
	if err := s.drafts.Put(ctx, stored); err != nil {
		s.logger.Warn("reset draft state", slog.String("draft_id", id), slog.Any("error", err))
	}
}

// Save persists the draft as one document. A new invoice resets the draft
// with the next number staged for the same branch; an edited invoice leaves
// the draft populated in the saved state. On failure the stored draft is
// left exactly as it was.
func (s *Service) Save(ctx context.Context, id string) (SaveResult, error) {
	peek, err := s.drafts.Get(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}
	if peek.Saving {
		return SaveResult{}, ErrSaveInProgress
	}
	if !s.claim(id) {
		return SaveResult{}, ErrSaveInProgress
	}
	defer s.unclaim(id)
	release := func(context.Context) {}
	if s.locker != nil {
		release, err = s.locker.Acquire(ctx, shared.DraftSaveLockKey(id))
		if errors.Is(err, shared.ErrLockNotObtained) {
			return SaveResult{}, ErrSaveInProgress
		}
		if err != nil {
			return SaveResult{}, err
		}
	}
	defer release(context.WithoutCancel(ctx))

	// Another save may have finished between the first read and the lock.
	stored, err := s.drafts.Get(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}
	if stored.Saving {
		return SaveResult{}, ErrSaveInProgress
	}
	if !stored.Editing() {
		return SaveResult{}, fmt.Errorf("%w: draft is %s", ErrInvalidState, stored.State)
	}

	work := stored.Clone()
	s.refreshWindow(work)
	if err := work.checkReady(s.reconciler(ctx)); err != nil {
		s.dropReady(ctx, id)
		return SaveResult{}, err
	}

	flagged := stored.Clone()
	flagged.Saving = true
	if err := s.drafts.Put(ctx, flagged); err != nil {
		return SaveResult{}, err
	}
	result, err := s.persist(ctx, work)
	if err != nil {
		if perr := s.drafts.Put(context.WithoutCancel(ctx), stored); perr != nil {
			s.logger.Error("restore draft after failed save", slog.String("draft_id", id), slog.Any("error", perr))
		}
		return SaveResult{}, err
	}
	if err := s.drafts.Put(ctx, result.Draft); err != nil {
		s.logger.Error("store draft after save", slog.String("draft_id", id), slog.String("invoice_id", result.Invoice.ID), slog.Any("error", err))
	}
	return result, nil
}

// claim marks id as saving within this process.
func (s *Service) claim(id string) bool {
	s.savingMu.Lock()
	defer s.savingMu.Unlock()
	if s.saving[id] {
		return false
	}
	s.saving[id] = true
	return true
}

func (s *Service) unclaim(id string) {
	s.savingMu.Lock()
	delete(s.saving, id)
	s.savingMu.Unlock()
}

func (s *Service) persist(ctx context.Context, work *Draft) (SaveResult, error) {
	now := s.now()
	if work.EditingInvoiceID == "" {
		if err := s.issueNumbers(ctx, work); err != nil {
			return SaveResult{}, err
		}
	}
	inv := work.invoice(now)
	mode := SaveModeCreate
	if work.EditingInvoiceID != "" {
		mode = SaveModeUpdate
		if err := s.store.UpdateByID(ctx, work.EditingInvoiceID, inv); err != nil {
			return SaveResult{}, err
		}
	} else {
		newID, err := s.store.Insert(ctx, inv)
		if err != nil {
			return SaveResult{}, err
		}
		inv.ID = newID
	}
	s.logger.Info("invoice saved",
		slog.String("invoice_id", inv.ID),
		slog.String("invoice_number", inv.InvoiceNumber),
		slog.String("branch_id", inv.Branch),
		slog.String("mode", mode),
	)
	if s.recorder != nil {
		s.recorder.RecordInvoiceSaved(mode)
	}
	if s.scanner != nil && inv.Branch != "" {
		if err := s.scanner.EnqueueDuplicateScan(ctx, inv.Branch, inv.Date.Time().Year()); err != nil {
			s.logger.Warn("enqueue duplicate scan", slog.String("branch_id", inv.Branch), slog.Any("error", err))
		}
	}

	if mode == SaveModeUpdate {
		work.State = StateSaved
		work.Saving = false
		work.LastSavedID = inv.ID
		work.CreatedAt = inv.CreatedAt
		work.UpdatedAt = now
		return SaveResult{Invoice: inv, Draft: work, Mode: mode}, nil
	}
	branch := work.Header.Branch
	nextInvoice, err := s.numbers.PeekInvoiceNumber(ctx, branch)
	if err != nil {
		s.logger.Warn("stage next invoice number", slog.String("branch_id", branch), slog.Any("error", err))
	}
	nextEntry, err := s.numbers.PeekEntryNumber(ctx, branch)
	if err != nil {
		s.logger.Warn("stage next entry number", slog.String("branch_id", branch), slog.Any("error", err))
	}
	work.resetAfterSave(branch, nextInvoice, nextEntry, inv.ID, now)
	return SaveResult{Invoice: inv, Draft: work, Mode: mode}, nil
}

// issueNumbers consumes the serials of a new invoice. Staged numbers are
// previews; a random entry reference is kept as staged.
func (s *Service) issueNumbers(ctx context.Context, work *Draft) error {
	branch := work.Header.Branch
	if branch == "" {
		if work.InvoiceNumber == "" {
			return sequence.ErrBranchRequired
		}
		return nil
	}
	invoiceNumber, err := s.numbers.NextInvoiceNumber(ctx, branch)
	if err != nil {
		return err
	}
	if work.InvoiceNumber != "" && work.InvoiceNumber != invoiceNumber {
		s.logger.Info("staged invoice number superseded",
			slog.String("branch_id", branch),
			slog.String("staged", work.InvoiceNumber),
			slog.String("issued", invoiceNumber),
		)
	}
	work.InvoiceNumber = invoiceNumber
	if work.EntryNumber == "" || sequence.IsSequentialEntry(work.EntryNumber) {
		entryNumber, err := s.numbers.NextEntryNumber(ctx, branch)
		if err != nil {
			return err
		}
		work.EntryNumber = entryNumber
	}
	return nil
}

// LoadForEdit opens a persisted invoice in a new editing draft.
func (s *Service) LoadForEdit(ctx context.Context, invoiceID string) (*Draft, error) {
	inv, err := s.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	window, err := s.registry.WindowFor(inv.FiscalYear)
	if err != nil {
		window = s.registry.Window()
	}
	d := &Draft{ID: s.newID()}
	d.loadInvoice(inv, window, s.now())
	if err := s.drafts.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// PreviewNumbers returns the numbers the next invoice of branchID would get
// without consuming them.
func (s *Service) PreviewNumbers(ctx context.Context, branchID string) (string, string, error) {
	invoiceNumber, err := s.numbers.PeekInvoiceNumber(ctx, branchID)
	if err != nil {
		return "", "", err
	}
	entryNumber, err := s.numbers.PeekEntryNumber(ctx, branchID)
	if err != nil {
		return "", "", err
	}
	return invoiceNumber, entryNumber, nil
}

// List returns every invoice, newest first.
func (s *Service) List(ctx context.Context) ([]Invoice, error) {
	return s.store.ListAll(ctx)
}

// Get loads one invoice.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	return s.store.Get(ctx, id)
}

// Delete removes an invoice permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.logger.Info("invoice deleted", slog.String("invoice_id", id))
	return nil
}
