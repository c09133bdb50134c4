package invoices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
)

func TestFromDocumentResolvesLegacyFields(t *testing.T) {
	created := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)
	inv := FromDocument(docstore.Document{
		ID:        "legacy-1",
		CreatedAt: created,
		Fields: docstore.Fields{
			"invoiceNumber":       "INV-1-2024-3",
			"date":                "2024-05-01T21:00:00Z",
			"branchId":            "br-1",
			"warehouseId":         "wh-1",
			"customerCode":        "C-1",
			"taxFileNumber":       "311",
			"salesRepresentative": "Sami",
			"cashBoxId":           "cb-1",
			"items": []any{
				map[string]any{"name": "Tea", "qty": "2", "salePrice": 5.5, "discount": 0, "taxRate": 15},
				"ignored",
			},
		},
	})

	assert.Equal(t, "legacy-1", inv.ID)
	assert.Equal(t, "2024-05-01", inv.Date.String())
	assert.Equal(t, 2024, inv.FiscalYear)
	assert.Equal(t, "br-1", inv.Branch)
	assert.Equal(t, "wh-1", inv.Warehouse)
	assert.Equal(t, "C-1", inv.CustomerNumber)
	assert.Equal(t, "311", inv.TaxFile)
	assert.Equal(t, "Sami", inv.Delegate)
	assert.Equal(t, "cb-1", inv.CashBox)
	assert.Equal(t, created, inv.CreatedAt)
	assert.Nil(t, inv.MultiplePayment)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Tea", inv.Items[0].ItemName)
	assert.Equal(t, 2.0, inv.Items[0].Quantity)
	assert.Equal(t, 12.65, inv.Totals.AfterTax, "missing totals are recomputed")
}

func TestFromDocumentPrefersStoredTotals(t *testing.T) {
	inv := FromDocument(docstore.Document{ID: "x", Fields: docstore.Fields{
		"items":  []any{map[string]any{"itemName": "Tea", "quantity": 1, "price": 10}},
		"totals": map[string]any{"total": 10, "afterDiscount": 10, "taxValue": 1.5, "net": 11.5},
		"multiplePayment": map[string]any{
			"bank": map[string]any{"bank": "bk-1", "amount": 11.5},
		},
	}})
	assert.Equal(t, 11.5, inv.Totals.AfterTax)
	assert.Equal(t, 1.5, inv.Totals.Tax)
	require.NotNil(t, inv.MultiplePayment)
	assert.Equal(t, "bk-1", inv.MultiplePayment.Bank.BankID)
}

func seedInvoice(docs *memoryDocuments, id, branch, date, number, entry string) {
	docs.put(CollectionInvoices, id, docstore.Fields{
		"branch":        branch,
		"date":          date,
		"invoiceNumber": number,
		"entryNumber":   entry,
		"warehouse":     "wh-1",
		"items":         []any{map[string]any{"itemName": "Rice 5kg", "quantity": 2}},
	})
}

func TestCountByBranchAndYear(t *testing.T) {
	docs := newMemoryDocuments()
	repo := NewRepository(docs)
	seedInvoice(docs, "a", "br-1", "2025-01-05", "INV-3-2025-1", "ENT-3-2025-1")
	seedInvoice(docs, "b", "br-1", "2025-03-05", "INV-3-2025-2", "")
	seedInvoice(docs, "c", "br-1", "2024-12-31", "INV-3-2024-9", "ENT-3-2024-9")
	seedInvoice(docs, "d", "br-2", "2025-01-05", "INV-4-2025-1", "ENT-4-2025-1")

	ctx := context.Background()
	n, err := repo.CountByBranchAndYear(ctx, sequence.DomainInvoice, "br-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountByBranchAndYear(ctx, sequence.DomainEntry, "br-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountByBranchAndYear(ctx, sequence.DomainInvoice, "br-9", 2025)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryStockMovements(t *testing.T) {
	docs := newMemoryDocuments()
	repo := NewRepository(docs)
	docs.put(CollectionPurchases, "p1", docstore.Fields{
		"warehouse": "wh-1",
		"items": []any{
			map[string]any{"itemName": "Rice 5kg", "quantity": 10},
			map[string]any{"itemName": "Rice 5kg", "quantity": 4, "warehouseId": "wh-2"},
		},
	})
	docs.put(CollectionReturns, "r1", docstore.Fields{
		"warehouseId": "wh-1",
		"items":       []any{map[string]any{"itemName": "Rice 5kg", "quantity": "1"}},
	})
	seedInvoice(docs, "a", "br-1", "2025-01-05", "INV-3-2025-1", "")
	seedInvoice(docs, "b", "br-1", "2025-01-06", "INV-3-2025-2", "")

	moves, err := repo.QueryStockMovements(context.Background(), "Rice 5kg", "wh-1", "")
	require.NoError(t, err)
	assert.Equal(t, 11.0, moves.Incoming)
	assert.Equal(t, 4.0, moves.Outgoing)
	assert.Equal(t, 7.0, moves.Available())

	moves, err = repo.QueryStockMovements(context.Background(), "Rice 5kg", "wh-1", "b")
	require.NoError(t, err)
	assert.Equal(t, 9.0, moves.Available())
}

func TestFindDuplicateNumbers(t *testing.T) {
	docs := newMemoryDocuments()
	repo := NewRepository(docs)
	seedInvoice(docs, "a", "br-1", "2025-01-05", "INV-3-2025-1", "")
	seedInvoice(docs, "b", "br-1", "2025-01-06", "INV-3-2025-1", "")
	seedInvoice(docs, "c", "br-1", "2025-01-07", "INV-3-2025-2", "")
	seedInvoice(docs, "d", "br-2", "2024-01-07", "INV-4-2024-1", "")
	seedInvoice(docs, "e", "br-2", "2024-02-07", "INV-4-2024-1", "")

	ctx := context.Background()
	dups, err := repo.FindDuplicateNumbers(ctx, "br-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, []DuplicateNumber{{Number: "INV-3-2025-1", Branch: "br-1", IDs: []string{"a", "b"}}}, dups)

	dups, err = repo.FindDuplicateNumbers(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, "INV-4-2024-1", dups[1].Number)
	assert.Equal(t, "br-2", dups[1].Branch)

	dups, err = repo.FindDuplicateNumbers(ctx, "br-2", 2025)
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestRepositoryNotFoundMapping(t *testing.T) {
	docs := newMemoryDocuments()
	repo := NewRepository(docs)
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpdateByID(ctx, "missing", Invoice{}), ErrInvoiceNotFound)
	assert.ErrorIs(t, repo.DeleteByID(ctx, "missing"), ErrInvoiceNotFound)
	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	docs.insertErr = errors.New("disk full")
	_, err = repo.Insert(ctx, Invoice{InvoiceNumber: "x"})
	assert.ErrorContains(t, err, "disk full")
}

func TestListAllNewestFirst(t *testing.T) {
	docs := newMemoryDocuments()
	repo := NewRepository(docs)
	docs.put(CollectionInvoices, "old", docstore.Fields{"createdAt": "2025-01-01T10:00:00Z"})
	docs.put(CollectionInvoices, "new", docstore.Fields{"createdAt": "2025-02-01T10:00:00Z"})

	list, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
}
