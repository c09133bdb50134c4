package masterdata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
)

// Documents is the subset of the document store the repository reads.
type Documents interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	All(ctx context.Context, collection string) ([]docstore.Document, error)
	Where(ctx context.Context, collection, field string, value any) ([]docstore.Document, error)
}

// Repository loads and normalizes masterdata documents.
type Repository struct {
	docs Documents
}

// NewRepository creates a new masterdata repository.
func NewRepository(docs Documents) *Repository {
	return &Repository{docs: docs}
}

func (r *Repository) get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if id == "" {
		return docstore.Document{}, fmt.Errorf("%s: empty id: %w", collection, ErrNotFound)
	}
	doc, err := r.docs.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.Document{}, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("load %s %s: %w", collection, id, err)
	}
	return doc, nil
}

// Branch loads one branch.
func (r *Repository) Branch(ctx context.Context, id string) (Branch, error) {
	doc, err := r.get(ctx, CollectionBranches, id)
	if err != nil {
		return Branch{}, err
	}
	return branchFrom(doc), nil
}

// Branches lists every branch ordered by name.
func (r *Repository) Branches(ctx context.Context) ([]Branch, error) {
	docs, err := r.docs.All(ctx, CollectionBranches)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	out := make([]Branch, 0, len(docs))
	for _, doc := range docs {
		out = append(out, branchFrom(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Warehouse loads one warehouse.
func (r *Repository) Warehouse(ctx context.Context, id string) (Warehouse, error) {
	doc, err := r.get(ctx, CollectionWarehouses, id)
	if err != nil {
		return Warehouse{}, err
	}
	return warehouseFrom(doc), nil
}

// WarehousesForBranch lists the warehouses whose branch field matches.
// Older documents store the link as branchId.
func (r *Repository) WarehousesForBranch(ctx context.Context, branchID string) ([]Warehouse, error) {
	seen := make(map[string]bool)
	var out []Warehouse
	for _, field := range []string{"branch", "branchId"} {
		docs, err := r.docs.Where(ctx, CollectionWarehouses, field, branchID)
		if err != nil {
			return nil, fmt.Errorf("warehouses for branch %s: %w", branchID, err)
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			out = append(out, warehouseFrom(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Item loads one catalog item.
func (r *Repository) Item(ctx context.Context, id string) (Item, error) {
	doc, err := r.get(ctx, CollectionItems, id)
	if err != nil {
		return Item{}, err
	}
	return itemFrom(doc), nil
}

// Company returns the first company document. Deployments hold exactly one.
func (r *Repository) Company(ctx context.Context) (Company, error) {
	docs, err := r.docs.All(ctx, CollectionCompanies)
	if err != nil {
		return Company{}, fmt.Errorf("load company: %w", err)
	}
	if len(docs) == 0 {
		return Company{}, fmt.Errorf("company: %w", ErrNotFound)
	}
	return companyFrom(docs[0]), nil
}

// Customer loads one customer.
func (r *Repository) Customer(ctx context.Context, id string) (Customer, error) {
	doc, err := r.get(ctx, CollectionCustomers, id)
	if err != nil {
		return Customer{}, err
	}
	return customerFrom(doc), nil
}

// PaymentMethods lists the configured payment method names.
func (r *Repository) PaymentMethods(ctx context.Context) ([]string, error) {
	docs, err := r.docs.All(ctx, CollectionPaymentMethods)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name := paymentMethodName(doc); name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CashBoxes lists cash boxes from both the current and the legacy collection.
func (r *Repository) CashBoxes(ctx context.Context) ([]CashBox, error) {
	seen := make(map[string]bool)
	var out []CashBox
	for _, collection := range []string{CollectionCashBoxes, CollectionLegacyCashBoxes} {
		docs, err := r.docs.All(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			out = append(out, cashBoxFrom(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Banks lists banks.
func (r *Repository) Banks(ctx context.Context) ([]Bank, error) {
	docs, err := r.docs.All(ctx, CollectionBanks)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	out := make([]Bank, 0, len(docs))
	for _, doc := range docs {
		out = append(out, bankFrom(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delegates lists sales representatives.
func (r *Repository) Delegates(ctx context.Context) ([]Delegate, error) {
	docs, err := r.docs.All(ctx, CollectionDelegates)
	if err != nil {
		return nil, fmt.Errorf("list delegates: %w", err)
	}
	out := make([]Delegate, 0, len(docs))
	for _, doc := range docs {
		out = append(out, delegateFrom(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
