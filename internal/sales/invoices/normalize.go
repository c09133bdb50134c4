package invoices

import (
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/totals"
)

// FromDocument decodes a stored invoice. Legacy field names and numbers
// stored as text are resolved here and nowhere else.
func FromDocument(doc docstore.Document) Invoice {
	f := doc.Fields
	inv := Invoice{
		ID:               doc.ID,
		InvoiceNumber:    f.String("invoiceNumber"),
		EntryNumber:      f.String("entryNumber"),
		Date:             NewDate(f.Time("date")),
		DueDate:          NewDate(f.Time("dueDate")),
		FiscalYear:       int(f.Float("fiscalYear")),
		Branch:           f.String("branch", "branchId"),
		Warehouse:        f.String("warehouse", "warehouseId"),
		MultiWarehouse:   f.Bool("multiWarehouse", "multipleWarehouses"),
		CustomerNumber:   f.String("customerNumber", "customerCode"),
		CustomerName:     f.String("customerName", "customer"),
		CommercialRecord: f.String("commercialRecord"),
		TaxFile:          f.String("taxFile", "taxFileNumber"),
		Delegate:         f.String("delegate", "salesRepresentative"),
		PaymentMethod:    f.String("paymentMethod"),
		CashBox:          f.String("cashBox", "cashBoxId"),
		MultiplePayment:  multiplePaymentFrom(f.Map("multiplePayment")),
		Type:             f.String("type"),
		CreatedAt:        f.Time("createdAt"),
		Source:           f.String("source"),
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = doc.CreatedAt
	}
	if inv.FiscalYear == 0 && !inv.Date.IsZero() {
		inv.FiscalYear = inv.Date.Time().Year()
	}
	for _, item := range f.Slice("items") {
		inv.Items = append(inv.Items, lineItemFrom(item))
	}
	inv.Totals = totalsFrom(f.Map("totals"), inv.Items)
	return inv
}

func lineItemFrom(f docstore.Fields) LineItem {
	return LineItem{
		ItemID:          f.String("itemId", "id"),
		ItemNumber:      f.String("itemNumber", "itemCode"),
		ItemName:        f.String("itemName", "name"),
		Quantity:        f.Float("quantity", "qty"),
		Unit:            f.String("unit"),
		Price:           f.Float("price", "salePrice"),
		DiscountPercent: f.Float("discountPercent", "discount"),
		DiscountValue:   f.Float("discountValue"),
		TaxPercent:      f.Float("taxPercent", "taxRate"),
		TaxValue:        f.Float("taxValue"),
		Total:           f.Float("total"),
		WarehouseID:     f.String("warehouseId", "warehouse"),
	}
}

// totalsFrom reads stored totals. Documents without a totals object get them
// recomputed from their items.
func totalsFrom(f docstore.Fields, items []LineItem) totals.Totals {
	if f == nil {
		return ComputeTotals(items)
	}
	return totals.Totals{
		Total:         f.Float("total"),
		AfterDiscount: f.Float("afterDiscount"),
		Tax:           f.Float("tax", "taxValue"),
		AfterTax:      f.Float("afterTax", "net"),
	}
}

func multiplePaymentFrom(f docstore.Fields) *payment.MultiplePayment {
	if f == nil {
		return nil
	}
	out := &payment.MultiplePayment{}
	if c := f.Map("cash"); c != nil {
		out.Cash = &payment.CashAllocation{CashBoxID: c.String("cashBoxId", "cashBox"), Amount: c.Float("amount")}
	}
	if b := f.Map("bank"); b != nil {
		out.Bank = &payment.BankAllocation{BankID: b.String("bankId", "bank"), Amount: b.Float("amount")}
	}
	if c := f.Map("card"); c != nil {
		out.Card = &payment.BankAllocation{BankID: c.String("bankId", "bank"), Amount: c.Float("amount")}
	}
	if out.Cash == nil && out.Bank == nil && out.Card == nil {
		return nil
	}
	return out
}
