package invoices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
)

type memoryDocuments struct {
	mu        sync.Mutex
	order     []string
	data      map[string]docstore.Fields
	nextID    int
	insertErr error
	updateErr error
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{data: make(map[string]docstore.Fields)}
}

func docKey(collection, id string) string { return collection + "/" + id }

func (m *memoryDocuments) put(collection, id string, f docstore.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(collection, id)
	if _, ok := m.data[key]; !ok {
		m.order = append(m.order, key)
	}
	m.data[key] = f
}

func (m *memoryDocuments) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.data[docKey(collection, id)]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: f}, nil
}

func (m *memoryDocuments) All(ctx context.Context, collection string) ([]docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []docstore.Document
	prefix := collection + "/"
	for _, key := range m.order {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, docstore.Document{ID: key[len(prefix):], Fields: m.data[key]})
		}
	}
	return out, nil
}

func (m *memoryDocuments) Where(ctx context.Context, collection, field string, value any) ([]docstore.Document, error) {
	all, _ := m.All(ctx, collection)
	var out []docstore.Document
	for _, doc := range all {
		if v, ok := doc.Fields[field]; ok && fmt.Sprint(v) == fmt.Sprint(value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryDocuments) Insert(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("inv-%d", m.nextID)
	m.mu.Unlock()
	m.put(collection, id, fields)
	return id, nil
}

func (m *memoryDocuments) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data[docKey(collection, id)]
	if !ok {
		return docstore.ErrNotFound
	}
	merged := docstore.Fields{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	m.data[docKey(collection, id)] = merged
	return nil
}

func (m *memoryDocuments) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(collection, id)
	if _, ok := m.data[key]; !ok {
		return docstore.ErrNotFound
	}
	delete(m.data, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

type stubMaster struct {
	warehouses map[string][]masterdata.Warehouse
	items      map[string]masterdata.Item
	customers  map[string]masterdata.Customer
	taxRate    float64
	methods    []string
}

func newStubMaster() *stubMaster {
	return &stubMaster{
		warehouses: map[string][]masterdata.Warehouse{
			"br-1": {{ID: "wh-1", Name: "Main", BranchID: "br-1"}},
			"br-2": {{ID: "wh-2", BranchID: "br-2"}, {ID: "wh-3", BranchID: "br-2"}},
		},
		items: map[string]masterdata.Item{
			"rice":  {ID: "rice", ItemNumber: "R5", Name: "Rice 5kg", Unit: "bag", SalePrice: 100},
			"oil":   {ID: "oil", ItemNumber: "O1", Name: "Oil 1L", Unit: "bottle", SalePrice: 20, AllowNegative: true},
			"sugar": {ID: "sugar", ItemNumber: "S1", Name: "Sugar", SalePrice: 10, TempCodes: true, AllowNegative: true},
		},
		customers: map[string]masterdata.Customer{
			"cu-1": {ID: "cu-1", Number: "C-9", Name: "Ahmed Trading", CommercialRecord: "CR-1", TaxFile: "300"},
		},
		taxRate: 15,
	}
}

func (s *stubMaster) LinkedWarehouse(ctx context.Context, branchID string) (masterdata.Warehouse, bool, error) {
	list := s.warehouses[branchID]
	if len(list) != 1 {
		return masterdata.Warehouse{}, false, nil
	}
	return list[0], true, nil
}

func (s *stubMaster) CurrentItem(ctx context.Context, id string) (masterdata.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return masterdata.Item{}, fmt.Errorf("item %s: %w", id, masterdata.ErrNotFound)
	}
	return item, nil
}

func (s *stubMaster) TaxRate(ctx context.Context) (float64, error) { return s.taxRate, nil }

func (s *stubMaster) Customer(ctx context.Context, id string) (masterdata.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return masterdata.Customer{}, fmt.Errorf("customer %s: %w", id, masterdata.ErrNotFound)
	}
	return c, nil
}

func (s *stubMaster) PaymentMethods(ctx context.Context) ([]string, error) { return s.methods, nil }

func (s *stubMaster) BranchNumber(ctx context.Context, branchID string) (string, error) {
	switch branchID {
	case "br-1":
		return "3", nil
	case "br-2":
		return "٤", nil
	}
	return "", errors.New("unknown branch")
}

type recordingScanner struct {
	calls []string
	err   error
}

func (r *recordingScanner) EnqueueDuplicateScan(ctx context.Context, branchID string, year int) error {
	r.calls = append(r.calls, fmt.Sprintf("%s:%d", branchID, year))
	return r.err
}

type countingSaves struct{ modes []string }

func (c *countingSaves) RecordInvoiceSaved(mode string) { c.modes = append(c.modes, mode) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func calendarYear(year int, status fiscal.Status) fiscal.FinancialYear {
	return fiscal.FinancialYear{
		ID:        fmt.Sprintf("fy-%d", year),
		Year:      year,
		StartDate: day(year, time.January, 1),
		EndDate:   day(year, time.December, 31),
		Status:    status,
	}
}

type fixture struct {
	docs     *memoryDocuments
	repo     *Repository
	drafts   *MemoryDraftStore
	master   *stubMaster
	registry *fiscal.Registry
	scanner  *recordingScanner
	saves    *countingSaves
	service  *Service
	ids      int
}

func newFixture(cfg Config) *fixture {
	now := func() time.Time { return time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC) }
	f := &fixture{
		docs:     newMemoryDocuments(),
		drafts:   NewMemoryDraftStore(),
		master:   newStubMaster(),
		registry: fiscal.NewRegistry([]fiscal.FinancialYear{calendarYear(2024, fiscal.StatusClosed), calendarYear(2025, fiscal.StatusOpen)}),
		scanner:  &recordingScanner{},
		saves:    &countingSaves{},
	}
	f.registry.WithNow(now)
	f.repo = NewRepository(f.docs)
	gen := sequence.NewGenerator(sequence.NewCountingSource(f.repo), f.master, sequence.EntryFormatSequential, quietLogger())
	gen.WithNow(now)
	f.service = NewService(f.repo, f.drafts, f.registry, gen, f.master, nil, cfg, quietLogger())
	f.service.WithNow(now)
	f.service.WithScanner(f.scanner)
	f.service.WithRecorder(f.saves)
	f.service.newID = func() string {
		f.ids++
		return fmt.Sprintf("draft-%d", f.ids)
	}
	return f
}

// stock records a purchase of qty units of itemName into warehouse.
func (f *fixture) stock(itemName, warehouse string, qty float64) {
	f.docs.put(CollectionPurchases, fmt.Sprintf("po-%s-%s-%v", itemName, warehouse, qty), docstore.Fields{
		"warehouse": warehouse,
		"items":     []any{map[string]any{"itemName": itemName, "quantity": qty}},
	})
}
