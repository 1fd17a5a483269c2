package services

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/models"
)

type allocationEntry struct {
	invoice  models.OpenInvoice
	selected bool
	payment  decimal.Decimal
	// payable is the balance due truncated to the currency's minor unit.
	payable decimal.Decimal
}

// PaymentAllocationEngine apportions one payment across a customer's open invoices.
// Every payment stays within [0, balanceDue] and is zero while unselected. Out-of-range
// amounts are clamped silently. Not safe for concurrent use.
type PaymentAllocationEngine struct {
	currency string
	order    []string
	entries  map[string]*allocationEntry
}

// NewPaymentAllocationEngine keeps the eligible invoices, in the given order.
func NewPaymentAllocationEngine(invoices []models.OpenInvoice, currency string) *PaymentAllocationEngine {
	eligible := lo.UniqBy(lo.Filter(invoices, func(inv models.OpenInvoice, _ int) bool {
		return inv.Eligible()
	}), func(inv models.OpenInvoice) string {
		return inv.ID
	})

	e := &PaymentAllocationEngine{
		currency: currency,
		order:    make([]string, 0, len(eligible)),
		entries:  make(map[string]*allocationEntry, len(eligible)),
	}
	for _, inv := range eligible {
		e.order = append(e.order, inv.ID)
		e.entries[inv.ID] = &allocationEntry{
			invoice: inv,
			payment: decimal.Zero,
			payable: models.TruncateMoney(inv.BalanceDue, currency),
		}
	}
	return e
}

// Toggle flips selection. Selecting pays the full balance due in whole minor units;
// deselecting resets to zero.
func (e *PaymentAllocationEngine) Toggle(invoiceID string) (models.PaymentAllocation, error) {
	entry, err := e.entry("Toggle", invoiceID)
	if err != nil {
		return models.PaymentAllocation{}, err
	}
	entry.selected = !entry.selected
	if entry.selected {
		entry.payment = entry.payable
	} else {
		entry.payment = decimal.Zero
	}
	return entry.toAllocation(), nil
}

// SetAmount sets the payment of an invoice, rounded to the currency's minor unit and
// clamped to [0, balanceDue]. A positive amount selects an unselected invoice.
func (e *PaymentAllocationEngine) SetAmount(invoiceID string, amount decimal.Decimal) (models.PaymentAllocation, error) {
	entry, err := e.entry("SetAmount", invoiceID)
	if err != nil {
		return models.PaymentAllocation{}, err
	}
	amount = clampAmount(models.RoundMoney(amount, e.currency), entry.payable)
	if !entry.selected && !amount.IsPositive() {
		return entry.toAllocation(), nil
	}
	entry.selected = true
	entry.payment = amount
	return entry.toAllocation(), nil
}

// AutoAllocate clears the current allocation and spreads amount over the invoices,
// oldest due date first. It returns the part of amount that no invoice could absorb.
func (e *PaymentAllocationEngine) AutoAllocate(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, apperrors.Invariantf("AutoAllocate", "Amount received cannot be negative (%s).", amount)
	}
	remaining := models.RoundMoney(amount, e.currency)

	e.Clear()
	for _, entry := range e.fifoOrder() {
		if !remaining.IsPositive() {
			break
		}
		pay := decimal.Min(remaining, entry.payable)
		entry.selected = true
		entry.payment = pay
		remaining = remaining.Sub(pay)
	}
	return remaining, nil
}

// Clear deselects every invoice.
func (e *PaymentAllocationEngine) Clear() {
	for _, entry := range e.entries {
		entry.selected = false
		entry.payment = decimal.Zero
	}
}

// Total is the sum of payments over selected invoices.
func (e *PaymentAllocationEngine) Total() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range e.entries {
		if entry.selected {
			total = total.Add(entry.payment)
		}
	}
	return total
}

// Count is the number of selected invoices.
func (e *PaymentAllocationEngine) Count() int {
	return lo.CountBy(lo.Values(e.entries), func(entry *allocationEntry) bool {
		return entry.selected
	})
}

// Allocations returns every invoice with its allocation, in list order.
func (e *PaymentAllocationEngine) Allocations() []models.PaymentAllocation {
	out := make([]models.PaymentAllocation, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.entries[id].toAllocation())
	}
	return out
}

// Payable returns the selected allocations that carry a positive payment.
func (e *PaymentAllocationEngine) Payable() []models.PaymentAllocation {
	return lo.Filter(e.Allocations(), func(a models.PaymentAllocation, _ int) bool {
		return a.Selected && a.Payment.IsPositive()
	})
}

func (e *PaymentAllocationEngine) entry(op, invoiceID string) (*allocationEntry, error) {
	entry, ok := e.entries[invoiceID]
	if !ok {
		return nil, apperrors.New(op, apperrors.ErrNotFound, "Invoice is not open for this payment.")
	}
	return entry, nil
}

func (e *PaymentAllocationEngine) fifoOrder() []*allocationEntry {
	entries := make([]*allocationEntry, 0, len(e.order))
	for _, id := range e.order {
		entries = append(entries, e.entries[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].invoice, entries[j].invoice
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.InvoiceNumber < b.InvoiceNumber
	})
	return entries
}

func (a *allocationEntry) toAllocation() models.PaymentAllocation {
	return models.PaymentAllocation{Invoice: a.invoice, Selected: a.selected, Payment: a.payment}
}

func clampAmount(amount, balanceDue decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(balanceDue) {
		return balanceDue
	}
	return amount
}
