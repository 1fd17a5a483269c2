package services

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/models"
)

func openInvoices() []models.OpenInvoice {
	return []models.OpenInvoice{
		{ID: "I-1", InvoiceNumber: "INV-001", Date: day("2026-01-10"), DueDate: day("2026-02-09"), Amount: dec("1000"), BalanceDue: dec("1000"), Status: models.InvoicePending},
		{ID: "I-2", InvoiceNumber: "INV-002", Date: day("2026-01-01"), DueDate: day("2026-01-15"), Amount: dec("300"), BalanceDue: dec("300"), Status: models.InvoiceOverdue},
		{ID: "I-3", InvoiceNumber: "INV-003", Date: day("2026-01-05"), DueDate: day("2026-01-20"), Amount: dec("700"), BalanceDue: dec("0"), Status: models.InvoicePaid},
		{ID: "I-4", InvoiceNumber: "INV-004", Date: day("2026-02-01"), DueDate: day("2026-03-03"), Amount: dec("800"), BalanceDue: dec("500"), Status: models.InvoicePartiallyPaid},
	}
}

func paymentOf(t *testing.T, e *PaymentAllocationEngine, id string) models.PaymentAllocation {
	t.Helper()
	for _, a := range e.Allocations() {
		if a.Invoice.ID == id {
			return a
		}
	}
	t.Fatalf("invoice %s not in allocation", id)
	return models.PaymentAllocation{}
}

func TestAllocation_KeepsEligibleInvoicesInOrder(t *testing.T) {
	invoices := append(openInvoices(), openInvoices()[0])
	e := NewPaymentAllocationEngine(invoices, "INR")

	ids := make([]string, 0)
	for _, a := range e.Allocations() {
		ids = append(ids, a.Invoice.ID)
		assert.False(t, a.Selected)
		assert.True(t, a.Payment.IsZero())
	}
	assert.Equal(t, []string{"I-1", "I-2", "I-4"}, ids)

	_, err := e.Toggle("I-3")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "a paid invoice cannot be allocated")
}

func TestAllocation_ToggleSelectsFullBalance(t *testing.T) {
	e := NewPaymentAllocationEngine(openInvoices(), "INR")

	a, err := e.Toggle("I-4")
	require.NoError(t, err)
	assert.True(t, a.Selected)
	assert.True(t, dec("500").Equal(a.Payment))

	_, err = e.Toggle("I-2")
	require.NoError(t, err)
	assert.True(t, dec("800").Equal(e.Total()))
	assert.Equal(t, 2, e.Count())

	a, err = e.Toggle("I-4")
	require.NoError(t, err)
	assert.False(t, a.Selected)
	assert.True(t, a.Payment.IsZero())
	assert.True(t, dec("300").Equal(e.Total()))
	assert.Equal(t, 1, e.Count())
}

func TestAllocation_SetAmountClamps(t *testing.T) {
	testCases := []struct {
		name     string
		amount   string
		selected bool
		expected string
	}{
		{"above balance", "1200", true, "1000"},
		{"within balance", "250.5", true, "250.5"},
		{"rounded to paise", "100.456", true, "100.46"},
		{"negative on unselected stays unselected", "-5", false, "0"},
		{"zero on unselected stays unselected", "0", false, "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewPaymentAllocationEngine(openInvoices(), "INR")
			a, err := e.SetAmount("I-1", dec(tc.amount))
			require.NoError(t, err)
			assert.Equal(t, tc.selected, a.Selected)
			assert.True(t, dec(tc.expected).Equal(a.Payment), "got %s", a.Payment)
		})
	}
}

func TestAllocation_SetAmountOnSelectedInvoice(t *testing.T) {
	e := NewPaymentAllocationEngine(openInvoices(), "INR")
	_, err := e.Toggle("I-1")
	require.NoError(t, err)

	a, err := e.SetAmount("I-1", dec("-20"))
	require.NoError(t, err)
	assert.True(t, a.Selected)
	assert.True(t, a.Payment.IsZero())
	assert.Empty(t, e.Payable(), "a zero payment is not payable")
	assert.Equal(t, 1, e.Count())
}

func TestAllocation_AutoAllocateOldestFirst(t *testing.T) {
	e := NewPaymentAllocationEngine(openInvoices(), "INR")
	_, err := e.Toggle("I-4")
	require.NoError(t, err)

	remaining, err := e.AutoAllocate(dec("1100"))
	require.NoError(t, err)
	assert.True(t, remaining.IsZero())

	assert.True(t, dec("300").Equal(paymentOf(t, e, "I-2").Payment))
	assert.True(t, dec("800").Equal(paymentOf(t, e, "I-1").Payment))
	assert.False(t, paymentOf(t, e, "I-4").Selected, "previous selections are cleared")
	assert.True(t, dec("1100").Equal(e.Total()))
}

func TestAllocation_AutoAllocateReturnsUnabsorbed(t *testing.T) {
	e := NewPaymentAllocationEngine(openInvoices(), "INR")

	remaining, err := e.AutoAllocate(dec("2000"))
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(remaining))
	assert.Equal(t, 3, e.Count())
	assert.True(t, dec("1800").Equal(e.Total()))

	_, err = e.AutoAllocate(dec("-1"))
	assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)
}

func TestAllocation_PaymentsStayInMinorUnits(t *testing.T) {
	invoices := []models.OpenInvoice{
		{ID: "I-9", InvoiceNumber: "INV-009", Date: day("2026-01-02"), DueDate: day("2026-01-02"), Amount: dec("200"), BalanceDue: dec("100.005"), Status: models.InvoicePending},
		{ID: "I-1", InvoiceNumber: "INV-001", Date: day("2026-01-10"), DueDate: day("2026-02-09"), Amount: dec("1000"), BalanceDue: dec("1000"), Status: models.InvoicePending},
	}
	inMinorUnits := func(d decimal.Decimal) bool { return d.Equal(d.Truncate(2)) }

	e := NewPaymentAllocationEngine(invoices, "INR")
	a, err := e.Toggle("I-9")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(a.Payment), "got %s", a.Payment)

	a, err = e.SetAmount("I-9", dec("100.01"))
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(a.Payment), "got %s", a.Payment)

	remaining, err := e.AutoAllocate(dec("150"))
	require.NoError(t, err)
	assert.True(t, remaining.IsZero())
	assert.True(t, dec("100").Equal(paymentOf(t, e, "I-9").Payment))
	assert.True(t, dec("50").Equal(paymentOf(t, e, "I-1").Payment))

	for _, a := range e.Allocations() {
		assert.True(t, inMinorUnits(a.Payment), "payment %s of %s", a.Payment, a.Invoice.ID)
	}
	assert.True(t, inMinorUnits(e.Total()))

	kwd := NewPaymentAllocationEngine(invoices, "KWD")
	a, err = kwd.Toggle("I-9")
	require.NoError(t, err)
	assert.True(t, dec("100.005").Equal(a.Payment), "three-decimal currencies keep the fils")
}

func TestAllocation_RandomOperationsStayInBounds(t *testing.T) {
	e := NewPaymentAllocationEngine(openInvoices(), "INR")
	ids := []string{"I-1", "I-2", "I-4"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		amount := decimal.New(rng.Int63n(300000)-50000, -2)
		switch rng.Intn(4) {
		case 0:
			_, err := e.Toggle(id)
			require.NoError(t, err)
		case 1:
			_, err := e.SetAmount(id, amount)
			require.NoError(t, err)
		case 2:
			if !amount.IsNegative() {
				_, err := e.AutoAllocate(amount)
				require.NoError(t, err)
			}
		case 3:
			e.Clear()
		}

		sum := decimal.Zero
		count := 0
		for _, a := range e.Allocations() {
			require.False(t, a.Payment.IsNegative())
			require.False(t, a.Payment.GreaterThan(a.Invoice.BalanceDue))
			if !a.Selected {
				require.True(t, a.Payment.IsZero())
				continue
			}
			sum = sum.Add(a.Payment)
			count++
		}
		require.True(t, sum.Equal(e.Total()))
		require.Equal(t, count, e.Count())
	}
}
