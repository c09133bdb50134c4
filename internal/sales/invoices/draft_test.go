package invoices

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
)

func sampleDraft() *Draft {
	d := &Draft{
		ID:     "d-1",
		State:  StateEditing,
		Window: fiscal.NewWindow(calendarYear(2025, fiscal.StatusOpen)),
		Header: Header{
			Branch:        "br-1",
			Warehouse:     "wh-1",
			Date:          NewDate(day(2025, time.March, 3)),
			DueDate:       NewDate(day(2025, time.April, 2)),
			PaymentMethod: payment.MethodMultiple,
			CashBox:       "cb-1",
			MultiplePayment: &payment.MultiplePayment{
				Cash: &payment.CashAllocation{CashBoxID: "cb-1", Amount: 10},
			},
		},
		InvoiceNumber: "INV-3-2025-8",
	}
	_ = d.addItem(LineItem{ItemName: "Tea", Quantity: 1, Price: 10}, day(2025, time.March, 3))
	return d
}

func TestCloneIsDeep(t *testing.T) {
	d := sampleDraft()
	c := d.Clone()
	c.Items[0].Quantity = 99
	c.Header.MultiplePayment.Cash.Amount = 1

	assert.Equal(t, 1.0, d.Items[0].Quantity)
	assert.Equal(t, 10.0, d.Header.MultiplePayment.Cash.Amount)
}

func TestCheckReadyRequiresAParty(t *testing.T) {
	d := sampleDraft()
	d.Header.Branch, d.Header.Warehouse = "", ""
	err := d.checkReady(payment.NewReconciler())
	assert.ErrorIs(t, err, ErrPartyRequired)
	assert.Equal(t, StateEditing, d.State)

	d.Header.CustomerName = "Walk-in"
	require.NoError(t, d.checkReady(payment.NewReconciler()))
	assert.Equal(t, StateReady, d.State)
}

func TestCheckReadyRejectsUnconfiguredMethod(t *testing.T) {
	d := sampleDraft()
	d.Header.PaymentMethod = "cheque"
	err := d.checkReady(payment.NewReconciler("آجل"))
	assert.ErrorIs(t, err, payment.ErrUnknownMethod)
}

func TestCheckReadyRejectsEmptyAndSaved(t *testing.T) {
	for _, state := range []State{StateEmpty, StateSaved} {
		d := sampleDraft()
		d.State = state
		assert.ErrorIs(t, d.checkReady(payment.NewReconciler()), ErrInvalidState)
	}
}

func TestInvoiceKeepsOnlyTheSelectedPaymentShape(t *testing.T) {
	now := day(2025, time.March, 4)
	d := sampleDraft()

	inv := d.invoice(now)
	assert.Empty(t, inv.CashBox)
	require.NotNil(t, inv.MultiplePayment)
	assert.Equal(t, DefaultType, inv.Type)
	assert.Equal(t, now, inv.CreatedAt)
	assert.Equal(t, 2025, inv.FiscalYear)
	assert.Equal(t, 10.0, inv.Totals.AfterTax)

	d.Header.PaymentMethod = payment.MethodCash
	inv = d.invoice(now)
	assert.Equal(t, "cb-1", inv.CashBox)
	assert.Nil(t, inv.MultiplePayment)
}

func TestInvoiceFieldsOmitID(t *testing.T) {
	inv := sampleDraft().invoice(day(2025, time.March, 4))
	inv.ID = "inv-7"

	fields, err := inv.Fields()
	require.NoError(t, err)
	assert.NotContains(t, fields, "id")
	assert.Equal(t, "2025-03-03", fields["date"])

	raw, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"inv-7"`)
}

func TestDateJSON(t *testing.T) {
	var out struct {
		A Date `json:"a"`
		B Date `json:"b"`
		C Date `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2025-02-01","b":"2025-02-01T22:10:00Z","c":""}`), &out))
	assert.Equal(t, "2025-02-01", out.A.String())
	assert.Equal(t, "2025-02-01", out.B.String())
	assert.True(t, out.C.IsZero())

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"2025-02-01","b":"2025-02-01","c":""}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"01/02/2025"}`), &out))
}

func TestResetAfterSaveStagesNumbers(t *testing.T) {
	d := sampleDraft()
	now := day(2025, time.March, 5)
	d.resetAfterSave("br-1", "INV-3-2025-9", "ENT-3-2025-9", "inv-8", now)

	assert.Equal(t, StateEmpty, d.State)
	assert.Empty(t, d.Items)
	assert.Equal(t, "INV-3-2025-9", d.InvoiceNumber)
	assert.Equal(t, "br-1", d.StagedBranch)
	assert.Equal(t, "2025-03-03", d.Header.Date.String())
	assert.Equal(t, payment.MethodCash, d.Header.PaymentMethod)
	assert.Nil(t, d.Header.MultiplePayment)
}
