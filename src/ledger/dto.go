package ledger

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/security/validation"
)

// envelope is the common response wrapper of the ledger API.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e envelope) errorText() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// AddressRecord is a postal address as sent by the ledger.
type AddressRecord struct {
	Attention string `json:"attention"`
	Street1   string `json:"street1"`
	Street2   string `json:"street2"`
	City      string `json:"city"`
	State     string `json:"state"`
	StateCode string `json:"stateCode"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// CustomerRecord holds the customer fields the core reads.
// PaymentTerms arrives either as a name ("Net 30") or as a day count.
type CustomerRecord struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	CustomerName    string          `json:"customerName"`
	CompanyName     string          `json:"companyName"`
	BillingAddress  *AddressRecord  `json:"billingAddress"`
	ShippingAddress *AddressRecord  `json:"shippingAddress"`
	GSTTreatment    string          `json:"gstTreatment"`
	TaxPreference   string          `json:"taxPreference"`
	ExemptionReason string          `json:"exemptionReason"`
	GSTIN           string          `json:"gstin"`
	PAN             string          `json:"pan"`
	PlaceOfSupply   string          `json:"placeOfSupply"`
	Currency        string          `json:"currency"`
	PaymentTerms    json.RawMessage `json:"paymentTerms"`
}

// InvoiceRecord is one entry of GET /invoices.
type InvoiceRecord struct {
	ID            string              `json:"id"`
	InvoiceNumber string              `json:"invoiceNumber"`
	Date          string              `json:"date"`
	DueDate       string              `json:"dueDate"`
	Amount        decimal.NullDecimal `json:"amount"`
	BalanceDue    decimal.NullDecimal `json:"balanceDue"`
	Status        string              `json:"status"`
}

// PaymentInvoiceLine is one allocation in POST /payments-received.
type PaymentInvoiceLine struct {
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	InvoiceDate   string          `json:"invoiceDate"`
	InvoiceAmount decimal.Decimal `json:"invoiceAmount"`
	BalanceDue    decimal.Decimal `json:"balanceDue"`
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
}

// PaymentReceivedRequest is the body of POST /payments-received.
// Amount always equals the sum of Invoices[].PaymentAmount.
type PaymentReceivedRequest struct {
	Date             string                  `json:"date"`
	CustomerID       string                  `json:"customerId"`
	CustomerName     string                  `json:"customerName"`
	Mode             string                  `json:"mode"`
	DepositTo        string                  `json:"depositTo"`
	ReferenceNumber  string                  `json:"referenceNumber"`
	Notes            string                  `json:"notes,omitempty"`
	Amount           decimal.Decimal         `json:"amount"`
	Invoices         []PaymentInvoiceLine    `json:"invoices"`
	CustomerSnapshot models.CustomerSnapshot `json:"customerSnapshot"`
}

// PaymentReceivedResult is the data returned after recording a payment.
type PaymentReceivedResult struct {
	ID            string `json:"id"`
	PaymentNumber string `json:"paymentNumber,omitempty"`
}

// InvoiceItemRecord is one recomputed line in PUT /invoices/{id}.
type InvoiceItemRecord struct {
	ItemID         string          `json:"itemId,omitempty"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	HSNSAC         string          `json:"hsnSac,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Rate           decimal.Decimal `json:"rate"`
	Discount       decimal.Decimal `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"taxRatePercent"`
	TaxableAmount  decimal.Decimal `json:"taxableAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	Total          decimal.Decimal `json:"total"`
}

// InvoiceUpdateRequest is the full recomputed document sent on invoice edit.
type InvoiceUpdateRequest struct {
	Items            []InvoiceItemRecord     `json:"items"`
	SubTotal         decimal.Decimal         `json:"subTotal"`
	CGST             decimal.Decimal         `json:"cgst"`
	SGST             decimal.Decimal         `json:"sgst"`
	IGST             decimal.Decimal         `json:"igst"`
	ShippingCharges  decimal.Decimal         `json:"shippingCharges"`
	Adjustment       decimal.Decimal         `json:"adjustment"`
	Total            decimal.Decimal         `json:"total"`
	BalanceDue       decimal.Decimal         `json:"balanceDue"`
	Currency         string                  `json:"currency"`
	TaxRegime        models.TaxRegime        `json:"taxRegime"`
	CustomerSnapshot models.CustomerSnapshot `json:"customerSnapshot"`
}

// InvoiceItemsFromLines converts computed lines into their wire form.
func InvoiceItemsFromLines(lines []models.ComputedLine) []InvoiceItemRecord {
	items := make([]InvoiceItemRecord, len(lines))
	for i, l := range lines {
		items[i] = InvoiceItemRecord{
			ItemID:         l.ItemID,
			Name:           l.Name,
			Description:    l.Description,
			HSNSAC:         l.HSNSAC,
			Quantity:       l.Quantity,
			Rate:           l.Rate,
			Discount:       l.Discount,
			TaxRatePercent: l.TaxRatePercent,
			TaxableAmount:  l.TaxableAmount,
			TaxAmount:      l.TaxAmount,
			Total:          l.Total,
		}
	}
	return items
}

// PaymentRequestFromRecord converts a payment into its wire form. Only allocations with
// a positive payment are sent.
func PaymentRequestFromRecord(rec models.PaymentRecord) PaymentReceivedRequest {
	lines := make([]PaymentInvoiceLine, 0, len(rec.Allocations))
	for _, a := range rec.Allocations {
		if !a.Selected || !a.Payment.IsPositive() {
			continue
		}
		lines = append(lines, PaymentInvoiceLine{
			InvoiceID:     a.Invoice.ID,
			InvoiceNumber: a.Invoice.InvoiceNumber,
			InvoiceDate:   a.Invoice.Date.Format(validation.ISODateLayout),
			InvoiceAmount: a.Invoice.Amount,
			BalanceDue:    a.Invoice.BalanceDue,
			PaymentAmount: a.Payment,
		})
	}
	return PaymentReceivedRequest{
		Date:             rec.Date.Format(validation.ISODateLayout),
		CustomerID:       rec.CustomerSnapshot.CustomerID,
		CustomerName:     rec.CustomerSnapshot.Name(),
		Mode:             string(rec.Mode),
		DepositTo:        rec.DepositTo,
		ReferenceNumber:  rec.ReferenceNumber,
		Notes:            rec.Notes,
		Amount:           rec.TotalAmount,
		Invoices:         lines,
		CustomerSnapshot: rec.CustomerSnapshot,
	}
}
