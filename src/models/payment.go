package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle status reported by the ledger.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoicePending       InvoiceStatus = "pending"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoicePending, InvoiceOverdue, InvoicePartiallyPaid, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

// AcceptsPayment reports whether an invoice in this status may receive an allocation.
func (s InvoiceStatus) AcceptsPayment() bool {
	return s == InvoicePending || s == InvoiceOverdue || s == InvoicePartiallyPaid
}

// OpenInvoice is an outstanding invoice of one customer.
type OpenInvoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Date          time.Time       `json:"date"`
	DueDate       time.Time       `json:"dueDate,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceDue    decimal.Decimal `json:"balanceDue"`
	Status        InvoiceStatus   `json:"status"`
}

// Eligible reports whether the invoice can take part in a payment allocation.
func (i OpenInvoice) Eligible() bool {
	return i.BalanceDue.IsPositive() && i.Status.AcceptsPayment()
}

// PaymentAllocation is the share of a payment assigned to one invoice.
// Payment is zero whenever Selected is false.
type PaymentAllocation struct {
	Invoice  OpenInvoice     `json:"invoice"`
	Selected bool            `json:"selected"`
	Payment  decimal.Decimal `json:"payment"`
}

// PaymentMode is how the money was received.
type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeBankTransfer PaymentMode = "bank_transfer"
	ModeCheque       PaymentMode = "cheque"
	ModeCard         PaymentMode = "card"
	ModeUPI          PaymentMode = "upi"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeBankTransfer, ModeCheque, ModeCard, ModeUPI:
		return true
	}
	return false
}

// PaymentDetails are the operator-entered fields of a payment.
// AmountReceived is optional; when set, allocations must add up to it.
type PaymentDetails struct {
	Date            time.Time        `json:"date"`
	Mode            PaymentMode      `json:"mode"`
	DepositTo       string           `json:"depositTo"`
	ReferenceNumber string           `json:"referenceNumber,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	AmountReceived  *decimal.Decimal `json:"amountReceived,omitempty"`
}

// PaymentRecord is a payment ready for submission.
type PaymentRecord struct {
	PaymentDetails
	TotalAmount      decimal.Decimal     `json:"totalAmount"`
	Allocations      []PaymentAllocation `json:"allocations"`
	CustomerSnapshot CustomerSnapshot    `json:"customerSnapshot"`
}
