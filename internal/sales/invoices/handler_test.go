package invoices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/shared"
	_ "github.com/odyssey-erp/odyssey-invoicing/testing"
)

type stubIdempotency struct {
	seen    map[string]bool
	deleted []string
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[module+"/"+key] = true
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.seen, IdempotencyModule+"/"+key)
	return nil
}

func newTestRouter(f *fixture, idem Idempotency) http.Handler {
	r := chi.NewRouter()
	NewHandler(quietLogger(), f.service, idem).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerDraftFlow(t *testing.T) {
	f := newFixture(Config{})
	idem := &stubIdempotency{}
	h := newTestRouter(f, idem)

	rec := do(t, h, http.MethodPost, "/drafts/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var d Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, StateEmpty, d.State)

	rec = do(t, h, http.MethodPost, "/drafts/"+d.ID+"/branch", `{"branch":"br-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invoiceNumber":"INV-3-2025-1"`)

	rec = do(t, h, http.MethodPost, "/drafts/"+d.ID+"/items", `{"itemId":"oil","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/drafts/"+d.ID+"/payment", `{"paymentMethod":"نقدي","cashBox":"cb-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/drafts/"+d.ID+"/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"ready_to_save"`)

	rec = do(t, h, http.MethodPost, "/drafts/"+d.ID+"/save", "", "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var result struct {
		Invoice map[string]any `json:"invoice"`
		Draft   Draft          `json:"draft"`
		Mode    string         `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "inv-1", result.Invoice["id"])
	assert.Equal(t, "INV-3-2025-2", result.Draft.InvoiceNumber)
	assert.Equal(t, SaveModeCreate, result.Mode)

	rec = do(t, h, http.MethodPost, "/drafts/"+d.ID+"/save", "", "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/invoices/?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invoiceNumber":"INV-3-2025-1"`)

	rec = do(t, h, http.MethodPost, "/invoices/inv-1/edit", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"editingInvoiceId":"inv-1"`)
}

func TestHandlerStockProblemCarriesFields(t *testing.T) {
	f := newFixture(Config{})
	h := newTestRouter(f, nil)
	d := editingDraft(t, f)
	f.stock("Rice 5kg", "wh-1", 3)

	rec := do(t, h, http.MethodPost, "/drafts/"+d.ID+"/items", `{"itemId":"rice","quantity":5}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Insufficient Stock", p.Title)
	assert.Equal(t, map[string]string{"item": "Rice 5kg", "available": "3", "requested": "5"}, p.Fields)
}

func TestHandlerDateViolation(t *testing.T) {
	f := newFixture(Config{})
	h := newTestRouter(f, nil)
	d := editingDraft(t, f)

	rec := do(t, h, http.MethodPut, "/drafts/"+d.ID+"/header", `{"warehouse":"wh-1","date":"2024-12-30"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "start", p.Fields["bound"])
	assert.Equal(t, "2025-01-01", p.Fields["limit"])

	rec = do(t, h, http.MethodPut, "/drafts/"+d.ID+"/header", `{"date":"30/12/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture(Config{})
	idem := &stubIdempotency{}
	h := newTestRouter(f, idem)
	d := editingDraft(t, f)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing draft", http.MethodGet, "/drafts/nope", "", http.StatusNotFound},
		{"missing invoice", http.MethodGet, "/invoices/nope", "", http.StatusNotFound},
		{"unknown item", http.MethodPost, "/drafts/" + d.ID + "/items", `{"itemId":"ghost","quantity":1}`, http.StatusBadRequest},
		{"suspended item", http.MethodPost, "/drafts/" + d.ID + "/items", `{"itemId":"sugar","quantity":1}`, http.StatusUnprocessableEntity},
		{"zero quantity", http.MethodPost, "/drafts/" + d.ID + "/items", `{"itemId":"oil","quantity":0}`, http.StatusBadRequest},
		{"bad index", http.MethodDelete, "/drafts/" + d.ID + "/items/x", "", http.StatusBadRequest},
		{"index out of range", http.MethodDelete, "/drafts/" + d.ID + "/items/4", "", http.StatusBadRequest},
		{"no items", http.MethodPost, "/drafts/" + d.ID + "/ready", "", http.StatusUnprocessableEntity},
		{"bad slot", http.MethodPost, "/drafts/" + d.ID + "/payment/autofill", `{"slot":"cheque"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/drafts/" + d.ID + "/branch", `{"branch":"br-1","extra":1}`, http.StatusBadRequest},
		{"missing branch", http.MethodGet, "/sequence/next", "", http.StatusBadRequest},
		{"unknown year", http.MethodPost, "/drafts/", `{"fiscalYear":1990}`, http.StatusBadRequest},
		{"closed year", http.MethodPost, "/drafts/", `{"fiscalYear":2024}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerSaveFailureReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(Config{})
	idem := &stubIdempotency{}
	h := newTestRouter(f, idem)
	d := editingDraft(t, f)

	rec := do(t, h, http.MethodPost, "/drafts/"+d.ID+"/save", "", "Idempotency-Key", "k-9")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []string{"k-9"}, idem.deleted)
}

func TestHandlerPreviewNumbers(t *testing.T) {
	f := newFixture(Config{})
	h := newTestRouter(f, nil)

	rec := do(t, h, http.MethodGet, "/sequence/next?branch=br-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INV-4-2025-1", body["invoiceNumber"])
	assert.Equal(t, "ENT-4-2025-1", body["entryNumber"])
}
