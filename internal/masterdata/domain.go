// Package masterdata resolves the reference entities an invoice points at:
// branches, warehouses, catalog items, the company, customers and payment
// channels. Documents are normalized once here so callers never deal with
// legacy field names.
package masterdata

import (
	"errors"
	"strings"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("masterdata: not found")

// Collections read by this package.
const (
	CollectionCompanies       = "companies"
	CollectionBranches        = "branches"
	CollectionWarehouses      = "warehouses"
	CollectionItems           = "inventory_items"
	CollectionCustomers       = "customers"
	CollectionPaymentMethods  = "paymentMethods"
	CollectionCashBoxes       = "cash_boxes"
	CollectionLegacyCashBoxes = "cashBoxes"
	CollectionBanks           = "banks"
	CollectionDelegates       = "salesRepresentatives"
)

// Branch is a sales location. Number is printed inside document numbers.
type Branch struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Warehouse is a stock location linked to a branch.
type Warehouse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BranchID string `json:"branchId"`
}

// Item is a catalog entry.
type Item struct {
	ID            string  `json:"id"`
	ItemNumber    string  `json:"itemNumber"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	SalePrice     float64 `json:"salePrice"`
	AllowNegative bool    `json:"allowNegative"`
	TempCodes     bool    `json:"tempCodes"`
}

// Suspended reports whether the item is temporarily blocked from sale.
func (i Item) Suspended() bool { return i.TempCodes }

// Company carries the settings shared by every invoice.
type Company struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	TaxRate float64 `json:"taxRate"`
}

// Customer is copied onto an invoice at the time of sale.
type Customer struct {
	ID               string `json:"id"`
	Number           string `json:"number"`
	Name             string `json:"name"`
	CommercialRecord string `json:"commercialRecord"`
	TaxFile          string `json:"taxFile"`
}

// CashBox receives cash payments.
type CashBox struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BranchID string `json:"branchId"`
}

// Bank receives bank transfers and card payments.
type Bank struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Delegate is a sales representative that can be credited on an invoice.
type Delegate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func branchFrom(doc docstore.Document) Branch {
	f := doc.Fields
	return Branch{
		ID:     doc.ID,
		Name:   f.String("name", "branchName", "nameAr"),
		Number: f.String("number", "branchNumber", "code"),
	}
}

func warehouseFrom(doc docstore.Document) Warehouse {
	f := doc.Fields
	return Warehouse{
		ID:       doc.ID,
		Name:     f.String("name", "warehouseName", "nameAr"),
		BranchID: f.String("branch", "branchId"),
	}
}

func itemFrom(doc docstore.Document) Item {
	f := doc.Fields
	return Item{
		ID:            doc.ID,
		ItemNumber:    f.String("itemNumber", "itemCode"),
		Name:          f.String("itemName", "name"),
		Unit:          f.String("unit", "unitName"),
		SalePrice:     f.Float("salePrice", "price"),
		AllowNegative: f.Bool("allowNegative"),
		TempCodes:     f.Bool("tempCodes"),
	}
}

func companyFrom(doc docstore.Document) Company {
	f := doc.Fields
	return Company{
		ID:      doc.ID,
		Name:    f.String("name", "arabicName", "englishName"),
		TaxRate: f.Float("taxRate", "vatRate"),
	}
}

func customerFrom(doc docstore.Document) Customer {
	f := doc.Fields
	return Customer{
		ID:               doc.ID,
		Number:           f.String("customerNumber", "customerCode", "number"),
		Name:             f.String("customerName", "nameAr", "name"),
		CommercialRecord: f.String("commercialRecord", "commercialReg"),
		TaxFile:          f.String("taxFile", "taxFileNumber"),
	}
}

func cashBoxFrom(doc docstore.Document) CashBox {
	f := doc.Fields
	return CashBox{
		ID:       doc.ID,
		Name:     f.String("nameAr", "name", "nameEn"),
		BranchID: f.String("branch", "branchId"),
	}
}

func bankFrom(doc docstore.Document) Bank {
	return Bank{ID: doc.ID, Name: doc.Fields.String("arabicName", "name", "englishName")}
}

func delegateFrom(doc docstore.Document) Delegate {
	return Delegate{ID: doc.ID, Name: doc.Fields.String("name", "nameAr")}
}

func paymentMethodName(doc docstore.Document) string {
	return strings.TrimSpace(doc.Fields.String("name", "method", "value"))
}
