package models

import (
	"github.com/shopspring/decimal"
)

// TaxRegime is derived from a snapshot and the issuer's home state. It is never stored
// apart from the snapshot it came from.
type TaxRegime string

const (
	RegimeIntraState TaxRegime = "intra_state"
	RegimeInterState TaxRegime = "inter_state"
	RegimeExempt     TaxRegime = "exempt"
)

// Tax component names.
const (
	ComponentCGST = "CGST"
	ComponentSGST = "SGST"
	ComponentIGST = "IGST"
)

// DocumentKind distinguishes the transactions that carry line items.
type DocumentKind string

const (
	DocumentInvoice DocumentKind = "invoice"
	DocumentQuote   DocumentKind = "quote"
)

func (k DocumentKind) Valid() bool {
	return k == DocumentInvoice || k == DocumentQuote
}

// LineItem is one editable row of a document.
type LineItem struct {
	ItemID         string          `json:"itemId,omitempty"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	HSNSAC         string          `json:"hsnSac,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Rate           decimal.Decimal `json:"rate"`
	Discount       decimal.Decimal `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"taxRatePercent"`
}

// Gross is quantity × rate, before discount.
func (l LineItem) Gross() decimal.Decimal {
	return l.Quantity.Mul(l.Rate)
}

// LineResult holds the amounts derived from a LineItem.
type LineResult struct {
	TaxableAmount decimal.Decimal `json:"taxableAmount"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Total         decimal.Decimal `json:"total"`
}

// ComputedLine pairs an item with its derived amounts.
type ComputedLine struct {
	LineItem
	LineResult
}

// TaxComponent is one named share of the document tax.
type TaxComponent struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// DocumentTotals are the aggregated amounts of a document. They are recomputed on every
// edit and never set directly.
type DocumentTotals struct {
	SubTotal        decimal.Decimal `json:"subTotal"`
	TotalTax        decimal.Decimal `json:"totalTax"`
	TaxComponents   []TaxComponent  `json:"taxComponents"`
	ShippingCharges decimal.Decimal `json:"shippingCharges"`
	Adjustment      decimal.Decimal `json:"adjustment"`
	GrandTotal      decimal.Decimal `json:"grandTotal"`
}

// Component returns the amount of the named tax component, or zero.
func (t DocumentTotals) Component(name string) decimal.Decimal {
	for _, c := range t.TaxComponents {
		if c.Name == name {
			return c.Amount
		}
	}
	return decimal.Zero
}
