package invoices

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
)

// Documents is the subset of the document store used by the repository.
type Documents interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	All(ctx context.Context, collection string) ([]docstore.Document, error)
	Where(ctx context.Context, collection, field string, value any) ([]docstore.Document, error)
	Insert(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields docstore.Fields) error
	Delete(ctx context.Context, collection, id string) error
}

// StockMovements aggregates how much of an item entered and left a warehouse.
type StockMovements struct {
	Incoming float64 `json:"incoming"`
	Outgoing float64 `json:"outgoing"`
}

// Available is incoming minus outgoing.
func (m StockMovements) Available() float64 { return m.Incoming - m.Outgoing }

// DuplicateNumber is an invoice number carried by more than one document.
type DuplicateNumber struct {
	Number string   `json:"number"`
	Branch string   `json:"branch"`
	IDs    []string `json:"ids"`
}

// Repository persists invoices in the document store.
type Repository struct {
	docs Documents
}

// NewRepository builds a Repository.
func NewRepository(docs Documents) *Repository {
	return &Repository{docs: docs}
}

// branchYear returns the invoices of branchID dated in year. The store is
// queried by branch only; the year is filtered here.
func (r *Repository) branchYear(ctx context.Context, branchID string, year int) ([]Invoice, error) {
	docs, err := r.docs.Where(ctx, CollectionInvoices, "branch", branchID)
	if err != nil {
		return nil, fmt.Errorf("query invoices for branch %s: %w", branchID, err)
	}
	var out []Invoice
	for _, doc := range docs {
		inv := FromDocument(doc)
		if inv.Date.IsZero() || inv.Date.Time().Year() != year {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// CountByBranchAndYear counts numbered documents of a sequence domain.
// Entry numbers are carried by the invoices they belong to.
func (r *Repository) CountByBranchAndYear(ctx context.Context, domain sequence.Domain, branchID string, year int) (int, error) {
	list, err := r.branchYear(ctx, branchID, year)
	if err != nil {
		return 0, err
	}
	if domain != sequence.DomainEntry {
		return len(list), nil
	}
	n := 0
	for _, inv := range list {
		if inv.EntryNumber != "" {
			n++
		}
	}
	return n, nil
}

// Insert stores a new invoice and returns its id.
func (r *Repository) Insert(ctx context.Context, inv Invoice) (string, error) {
	fields, err := inv.Fields()
	if err != nil {
		return "", fmt.Errorf("encode invoice: %w", err)
	}
	id, err := r.docs.Insert(ctx, CollectionInvoices, fields)
	if err != nil {
		return "", fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

// UpdateByID merges inv into the stored invoice id.
func (r *Repository) UpdateByID(ctx context.Context, id string, inv Invoice) error {
	fields, err := inv.Fields()
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	if err := r.docs.Update(ctx, CollectionInvoices, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		return fmt.Errorf("update invoice %s: %w", id, err)
	}
	return nil
}

// ListAll returns every invoice, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Invoice, error) {
	docs, err := r.docs.All(ctx, CollectionInvoices)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	out := make([]Invoice, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get loads one invoice.
func (r *Repository) Get(ctx context.Context, id string) (Invoice, error) {
	doc, err := r.docs.Get(ctx, CollectionInvoices, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return FromDocument(doc), nil
}

// DeleteByID removes an invoice permanently.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	if err := r.docs.Delete(ctx, CollectionInvoices, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		return fmt.Errorf("delete invoice %s: %w", id, err)
	}
	return nil
}

// QueryStockMovements sums the quantity of itemName moved through
// warehouseID. Purchases and sales returns are incoming, sales invoices are
// outgoing. The invoice excludeID is skipped so an edited invoice does not
// count against itself.
func (r *Repository) QueryStockMovements(ctx context.Context, itemName, warehouseID, excludeID string) (StockMovements, error) {
	collections := []string{CollectionPurchases, CollectionReturns, CollectionInvoices}
	sums := make([]float64, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		g.Go(func() error {
			docs, err := r.docs.All(gctx, collection)
			if err != nil {
				return fmt.Errorf("scan %s: %w", collection, err)
			}
			for _, doc := range docs {
				if collection == CollectionInvoices && doc.ID == excludeID {
					continue
				}
				sums[i] += movedQuantity(doc.Fields, itemName, warehouseID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StockMovements{}, err
	}
	return StockMovements{Incoming: sums[0] + sums[1], Outgoing: sums[2]}, nil
}

func movedQuantity(f docstore.Fields, itemName, warehouseID string) float64 {
	docWarehouse := f.String("warehouse", "warehouseId")
	var qty float64
	for _, raw := range f.Slice("items") {
		item := lineItemFrom(raw)
		if item.ItemName != itemName {
			continue
		}
		warehouse := item.WarehouseID
		if warehouse == "" {
			warehouse = docWarehouse
		}
		if warehouse != warehouseID {
			continue
		}
		qty += item.Quantity
	}
	return qty
}

// FindDuplicateNumbers reports invoice numbers shared by several documents.
// An empty branchID scans every branch; year 0 scans every year.
func (r *Repository) FindDuplicateNumbers(ctx context.Context, branchID string, year int) ([]DuplicateNumber, error) {
	var list []Invoice
	if branchID == "" {
		all, err := r.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		list = all
	} else {
		docs, err := r.docs.Where(ctx, CollectionInvoices, "branch", branchID)
		if err != nil {
			return nil, fmt.Errorf("query invoices for branch %s: %w", branchID, err)
		}
		for _, doc := range docs {
			list = append(list, FromDocument(doc))
		}
	}
	byNumber := make(map[string][]string)
	branchOf := make(map[string]string)
	for _, inv := range list {
		if inv.InvoiceNumber == "" {
			continue
		}
		if year != 0 && (inv.Date.IsZero() || inv.Date.Time().Year() != year) {
			continue
		}
		byNumber[inv.InvoiceNumber] = append(byNumber[inv.InvoiceNumber], inv.ID)
		if _, ok := branchOf[inv.InvoiceNumber]; !ok {
			branchOf[inv.InvoiceNumber] = inv.Branch
		}
	}
	var out []DuplicateNumber
	for number, ids := range byNumber {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, DuplicateNumber{Number: number, Branch: branchOf[number], IDs: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
