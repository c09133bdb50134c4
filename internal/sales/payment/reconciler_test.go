package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileMultipleReportsRemaining(t *testing.T) {
	r := NewReconciler()
	multi := &MultiplePayment{
		Cash: &CashAllocation{CashBoxID: "box-1", Amount: 300},
		Bank: &BankAllocation{BankID: "bank-1", Amount: 199.50},
	}

	res := r.Reconcile(500, MethodMultiple, "", multi)

	assert.False(t, res.OK)
	assert.Equal(t, 0.5, res.Remaining)
	assert.Equal(t, "remaining 0.50, must be 0.00", res.Message)
	assert.ErrorIs(t, res.Err(), ErrPaymentMismatch)
}

func TestReconcileMultipleWithinTolerance(t *testing.T) {
	r := NewReconciler()
	cases := map[string]*MultiplePayment{
		"exact": {Cash: &CashAllocation{Amount: 300}, Bank: &BankAllocation{Amount: 200}},
		"under": {Cash: &CashAllocation{Amount: 300}, Card: &BankAllocation{Amount: 199.99}},
		"over":  {Bank: &BankAllocation{Amount: 500.01}},
	}
	for name, multi := range cases {
		t.Run(name, func(t *testing.T) {
			res := r.Reconcile(500, MethodMultiple, "", multi)
			assert.True(t, res.OK)
			assert.NoError(t, res.Err())
		})
	}
}

func TestReconcileMultipleOverpaid(t *testing.T) {
	res := NewReconciler().Reconcile(100, MethodMultiple, "", &MultiplePayment{Cash: &CashAllocation{Amount: 100.5}})

	require.False(t, res.OK)
	assert.Equal(t, -0.5, res.Remaining)
	assert.Equal(t, "remaining -0.50, must be 0.00", res.Message)
}

func TestReconcileRejectsNegativeAllocations(t *testing.T) {
	multi := &MultiplePayment{
		Cash: &CashAllocation{CashBoxID: "box-1", Amount: 600},
		Bank: &BankAllocation{BankID: "bank-1", Amount: -100},
	}

	res := NewReconciler().Reconcile(500, MethodMultiple, "", multi)

	require.False(t, res.OK)
	assert.ErrorIs(t, res.Err(), ErrNegativeAllocation)
	assert.Equal(t, "bank amount cannot be negative", res.Message)
}

func TestReconcileMultipleRequiresBreakdown(t *testing.T) {
	res := NewReconciler().Reconcile(100, MethodMultiple, "", nil)
	assert.ErrorIs(t, res.Err(), ErrMultiplePaymentRequired)
}

func TestReconcileCashRequiresCashBox(t *testing.T) {
	r := NewReconciler()

	assert.ErrorIs(t, r.Reconcile(100, MethodCash, "", nil).Err(), ErrCashBoxRequired)
	assert.True(t, r.Reconcile(100, MethodCash, "box-1", nil).OK)
}

func TestReconcileConfiguredMethods(t *testing.T) {
	r := NewReconciler("آجل", "شبكة")

	assert.True(t, r.Reconcile(100, "آجل", "", nil).OK)
	assert.ErrorIs(t, r.Reconcile(100, "bitcoin", "", nil).Err(), ErrUnknownMethod)
	assert.ErrorIs(t, r.Reconcile(100, " ", "", nil).Err(), ErrMethodRequired)
	assert.True(t, r.Reconcile(100, MethodCash, "box", nil).OK)
}

func TestAutoFillOnlyPositiveRemainder(t *testing.T) {
	multi := &MultiplePayment{Cash: &CashAllocation{Amount: 300}}

	amount, ok := AutoFill(500, multi, SlotBank)
	require.True(t, ok)
	assert.Equal(t, 200.0, amount)

	_, ok = AutoFill(500, multi, SlotCash)
	assert.False(t, ok, "filled slot must not be overwritten")

	over := &MultiplePayment{Cash: &CashAllocation{Amount: 600}}
	_, ok = AutoFill(500, over, SlotCard)
	assert.False(t, ok, "negative remainder must not auto-fill")

	_, ok = AutoFill(500, nil, SlotCash)
	assert.True(t, ok)
}

func TestMultiplePaymentSet(t *testing.T) {
	multi := &MultiplePayment{Bank: &BankAllocation{BankID: "b-1"}}
	multi.Set(SlotBank, 42)
	multi.Set(SlotCard, 8)

	assert.Equal(t, "b-1", multi.Bank.BankID)
	assert.Equal(t, 42.0, multi.Bank.Amount)
	assert.Equal(t, "50", multi.Sum().String())
	assert.False(t, Slot("crypto").Valid())
}
