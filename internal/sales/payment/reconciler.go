// Package payment validates how an invoice's net total is settled.
package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payment method names as stored on invoice documents.
const (
	MethodCash     = "نقدي"
	MethodMultiple = "متعدد"
)

// Tolerance is the absolute difference accepted between allocations and the net total.
const Tolerance = 0.01

var tolerance = decimal.NewFromFloat(Tolerance)

var (
	ErrMethodRequired          = errors.New("payment: method is required")
	ErrUnknownMethod           = errors.New("payment: unknown payment method")
	ErrCashBoxRequired         = errors.New("payment: cash box is required for cash payments")
	ErrMultiplePaymentRequired = errors.New("payment: allocation breakdown is required for multiple payments")
	ErrPaymentMismatch         = errors.New("payment: allocations do not match the invoice total")
	ErrNegativeAllocation      = errors.New("payment: allocation amounts cannot be negative")
)

// CashAllocation is the cash share of a multiple payment.
type CashAllocation struct {
	CashBoxID string  `json:"cashBoxId"`
	Amount    float64 `json:"amount"`
}

// BankAllocation is a bank or card share of a multiple payment.
type BankAllocation struct {
	BankID string  `json:"bankId"`
	Amount float64 `json:"amount"`
}

// MultiplePayment splits a net total across cash, bank and card. Missing
// slots count as zero.
type MultiplePayment struct {
	Cash *CashAllocation `json:"cash,omitempty"`
	Bank *BankAllocation `json:"bank,omitempty"`
	Card *BankAllocation `json:"card,omitempty"`
}

// Slot names one allocation of a MultiplePayment.
type Slot string

const (
	SlotCash Slot = "cash"
	SlotBank Slot = "bank"
	SlotCard Slot = "card"
)

// Sum adds every present allocation.
func (m *MultiplePayment) Sum() decimal.Decimal {
	sum := decimal.Zero
	if m == nil {
		return sum
	}
	if m.Cash != nil {
		sum = sum.Add(decimal.NewFromFloat(m.Cash.Amount))
	}
	if m.Bank != nil {
		sum = sum.Add(decimal.NewFromFloat(m.Bank.Amount))
	}
	if m.Card != nil {
		sum = sum.Add(decimal.NewFromFloat(m.Card.Amount))
	}
	return sum
}

// Set writes the amount of a slot, keeping an already chosen account.
func (m *MultiplePayment) Set(slot Slot, amount float64) {
	switch slot {
	case SlotCash:
		if m.Cash == nil {
			m.Cash = &CashAllocation{}
		}
		m.Cash.Amount = amount
	case SlotBank:
		if m.Bank == nil {
			m.Bank = &BankAllocation{}
		}
		m.Bank.Amount = amount
	case SlotCard:
		if m.Card == nil {
			m.Card = &BankAllocation{}
		}
		m.Card.Amount = amount
	}
}

// Valid reports whether slot names a known allocation.
func (s Slot) Valid() bool {
	return s == SlotCash || s == SlotBank || s == SlotCard
}

// negativeSlot returns the first slot holding an amount below zero.
func (m *MultiplePayment) negativeSlot() (Slot, bool) {
	for _, slot := range []Slot{SlotCash, SlotBank, SlotCard} {
		if amount, ok := m.amount(slot); ok && amount < 0 {
			return slot, true
		}
	}
	return "", false
}

func (m *MultiplePayment) amount(slot Slot) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch slot {
	case SlotCash:
		if m.Cash != nil {
			return m.Cash.Amount, true
		}
	case SlotBank:
		if m.Bank != nil {
			return m.Bank.Amount, true
		}
	case SlotCard:
		if m.Card != nil {
			return m.Card.Amount, true
		}
	}
	return 0, false
}

// Result reports the outcome of a reconciliation.
type Result struct {
	OK        bool    `json:"ok"`
	Remaining float64 `json:"remaining"`
	Message   string  `json:"message,omitempty"`
	err       error
}

// Err returns nil for a successful result, otherwise an error wrapping one of
// the package sentinels.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.err == nil {
		return errors.New(r.Message)
	}
	return fmt.Errorf("%w: %s", r.err, r.Message)
}

func fail(err error, remaining decimal.Decimal, msg string) Result {
	return Result{OK: false, Remaining: remaining.InexactFloat64(), Message: msg, err: err}
}

// Reconciler checks payment selections against an invoice net total.
type Reconciler struct {
	methods map[string]struct{}
}

// NewReconciler builds a reconciler that accepts the cash and multiple methods
// plus any extra configured method names. With no extras every non-empty
// method name is accepted.
func NewReconciler(extra ...string) *Reconciler {
	r := &Reconciler{}
	if len(extra) == 0 {
		return r
	}
	r.methods = map[string]struct{}{MethodCash: {}, MethodMultiple: {}}
	for _, m := range extra {
		if m = strings.TrimSpace(m); m != "" {
			r.methods[m] = struct{}{}
		}
	}
	return r
}

// Reconcile validates a payment selection. Single methods settle the whole
// net total; multiple payments must sum to afterTax within Tolerance.
func (r *Reconciler) Reconcile(afterTax float64, method, cashBoxID string, multi *MultiplePayment) Result {
	method = strings.TrimSpace(method)
	if method == "" {
		return fail(ErrMethodRequired, decimal.Zero, "payment method is required")
	}
	if r != nil && r.methods != nil {
		if _, ok := r.methods[method]; !ok {
			return fail(ErrUnknownMethod, decimal.Zero, fmt.Sprintf("payment method %q is not configured", method))
		}
	}
	switch method {
	case MethodCash:
		if strings.TrimSpace(cashBoxID) == "" {
			return fail(ErrCashBoxRequired, decimal.Zero, "select a cash box for cash payments")
		}
		return Result{OK: true}
	case MethodMultiple:
		if multi == nil {
			return fail(ErrMultiplePaymentRequired, decimal.NewFromFloat(afterTax).Round(2), "enter the payment breakdown")
		}
		remaining := Remaining(afterTax, multi)
		if slot, ok := multi.negativeSlot(); ok {
			return fail(ErrNegativeAllocation, remaining, fmt.Sprintf("%s amount cannot be negative", slot))
		}
		if remaining.Abs().LessThanOrEqual(tolerance) {
			return Result{OK: true, Remaining: remaining.InexactFloat64()}
		}
		return fail(ErrPaymentMismatch, remaining, fmt.Sprintf("remaining %s, must be 0.00", remaining.StringFixed(2)))
	default:
		return Result{OK: true}
	}
}

// Remaining is afterTax minus every filled allocation, rounded to 2 decimals.
func Remaining(afterTax float64, multi *MultiplePayment) decimal.Decimal {
	return decimal.NewFromFloat(afterTax).Sub(multi.Sum()).Round(2)
}

// AutoFill returns the balance an empty slot should be pre-filled with. It
// reports false when the slot already has an amount or the balance is not positive.
func AutoFill(afterTax float64, multi *MultiplePayment, slot Slot) (float64, bool) {
	if amount, ok := multi.amount(slot); ok && amount != 0 {
		return 0, false
	}
	remaining := Remaining(afterTax, multi)
	if !remaining.IsPositive() {
		return 0, false
	}
	return remaining.InexactFloat64(), true
}
