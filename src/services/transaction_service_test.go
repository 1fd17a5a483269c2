package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/processors"
)

type transactionFixture struct {
	svc      TransactionService
	store    *SessionStore
	ledger   *fakeLedger
	resolver *stubResolver
}

func newTransactionFixture(t *testing.T) *transactionFixture {
	t.Helper()
	store := newTestStore(t)
	fake := newFakeLedger()
	resolver := &stubResolver{
		snapshots: map[string]models.CustomerSnapshot{
			"C-MH": maharashtraCustomer(),
			"C-KA": karnatakaCustomer(),
			"C-EX": exemptCustomer(),
		},
	}
	svc := NewTransactionService(store, resolver,
		processors.NewTaxRegimeClassifier(processors.MissingPlaceOfSupplyIsIntraState),
		fake, "MH", "INR")
	svc.(*transactionServiceImpl).now = func() time.Time { return time.Date(2026, 1, 31, 15, 0, 0, 0, time.UTC) }
	return &transactionFixture{svc: svc, store: store, ledger: fake, resolver: resolver}
}

func TestCreateTransaction_Defaults(t *testing.T) {
	f := newTransactionFixture(t)

	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, models.DocumentInvoice, view.Kind)
	assert.Equal(t, StateIdle, view.State)
	assert.Equal(t, models.RegimeIntraState, view.TaxRegime)
	assert.Equal(t, []string{"CGST", "SGST"}, view.TaxLabels)
	assert.Equal(t, "INR", view.Currency)
	assert.Equal(t, "2026-01-31", view.IssueDate)
	assert.Empty(t, view.DueDate)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Totals.GrandTotal.IsZero())
	assert.Equal(t, 1, f.store.Len())
}

func TestTransaction_LineComputation(t *testing.T) {
	f := newTransactionFixture(t)
	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{})
	require.NoError(t, err)

	view, err = f.svc.AppendLine(view.SessionID, widget())
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	line := view.Lines[0]
	assert.True(t, dec("180").Equal(line.TaxableAmount))
	assert.True(t, dec("32.4").Equal(line.TaxAmount))
	assert.True(t, dec("212.4").Equal(line.Total))

	assert.True(t, dec("180").Equal(view.Totals.SubTotal))
	assert.True(t, dec("16.2").Equal(view.Totals.Component(models.ComponentCGST)))
	assert.True(t, dec("16.2").Equal(view.Totals.Component(models.ComponentSGST)))
	assert.True(t, dec("212.4").Equal(view.Totals.GrandTotal))
	assert.True(t, dec("212.4").Equal(view.BalanceDue))
}

func TestTransaction_CustomerChangeRecomputesRegime(t *testing.T) {
	f := newTransactionFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, CreateTransactionRequest{Items: []models.LineItem{widget()}})
	require.NoError(t, err)
	id := view.SessionID

	view, err = f.svc.SelectCustomer(ctx, id, "C-MH")
	require.NoError(t, err)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, models.RegimeIntraState, view.TaxRegime)
	assert.Equal(t, "Pune Traders", view.CustomerName)
	assert.Equal(t, "2026-03-02", view.DueDate)
	assert.Contains(t, view.BillingAddress, "Pune, Maharashtra 411004")

	view, err = f.svc.SelectCustomer(ctx, id, "C-KA")
	require.NoError(t, err)
	assert.Equal(t, models.RegimeInterState, view.TaxRegime)
	assert.Equal(t, []string{"IGST"}, view.TaxLabels)
	assert.True(t, dec("32.4").Equal(view.Totals.Component(models.ComponentIGST)))
	assert.True(t, view.Totals.Component(models.ComponentCGST).IsZero())
	assert.True(t, dec("212.4").Equal(view.Totals.GrandTotal))
	assert.Equal(t, "2026-01-31", view.DueDate, "due on receipt")

	view, err = f.svc.SelectCustomer(ctx, id, "C-EX")
	require.NoError(t, err)
	assert.Equal(t, models.RegimeExempt, view.TaxRegime)
	assert.Empty(t, view.TaxLabels)
	assert.True(t, view.Lines[0].TaxAmount.IsZero())
	assert.True(t, dec("180").Equal(view.Totals.GrandTotal))
}

func TestTransaction_StaleStatusNeverRebasesBackwards(t *testing.T) {
	f := newTransactionFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, CreateTransactionRequest{InvoiceID: "I-80", Items: []models.LineItem{widget()}})
	require.NoError(t, err)
	id := view.SessionID

	_, err = f.svc.SelectCustomer(ctx, id, "C-MH")
	require.NoError(t, err)
	session, err := getSession[*TransactionSession](f.store, id)
	require.NoError(t, err)
	stale := session.bootstrap.Status()

	_, err = f.svc.SelectCustomer(ctx, id, "C-KA")
	require.NoError(t, err)

	// A status read before the second selection completed arrives late.
	svc := f.svc.(*transactionServiceImpl)
	session.mu.Lock()
	svc.rebaseLocked(session, stale)
	session.mu.Unlock()

	view, err = f.svc.AppendLine(id, widget())
	require.NoError(t, err)
	assert.Equal(t, "C-KA", view.CustomerID)
	assert.Equal(t, models.RegimeInterState, view.TaxRegime)
	assert.Equal(t, []string{"IGST"}, view.TaxLabels)

	_, err = f.svc.Save(ctx, id)
	require.NoError(t, err)
	req, ok := f.ledger.updates["I-80"]
	require.True(t, ok)
	assert.Equal(t, "C-KA", req.CustomerSnapshot.CustomerID)
	assert.Equal(t, models.RegimeInterState, req.TaxRegime)
	assert.True(t, dec("64.8").Equal(req.IGST))
	assert.True(t, req.CGST.IsZero())
}

func TestTransaction_EditDuringResolutionFollowsLatestCustomer(t *testing.T) {
	store := newTestStore(t)
	fake := newFakeLedger()
	resolver := newGatedResolver(map[string]models.CustomerSnapshot{
		"C-MH": maharashtraCustomer(),
		"C-KA": karnatakaCustomer(),
	})
	svc := NewTransactionService(store, resolver,
		processors.NewTaxRegimeClassifier(processors.MissingPlaceOfSupplyIsIntraState),
		fake, "MH", "INR")
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateTransactionRequest{InvoiceID: "I-81", Items: []models.LineItem{widget()}})
	require.NoError(t, err)
	id := view.SessionID

	first := make(chan error, 1)
	go func() {
		_, err := svc.SelectCustomer(ctx, id, "C-MH")
		first <- err
	}()
	require.Equal(t, "C-MH", <-resolver.started)

	second := make(chan error, 1)
	go func() {
		_, err := svc.SelectCustomer(ctx, id, "C-KA")
		second <- err
	}()
	require.Equal(t, "C-KA", <-resolver.started)

	resolver.release("C-MH")
	require.NoError(t, <-first)

	view, err = svc.SetCharges(id, dec("10"), dec("0"))
	require.NoError(t, err)
	assert.Equal(t, StateResolvingCustomer, view.State)
	assert.Nil(t, view.Snapshot)

	_, err = svc.Save(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "nothing is saved while the customer is resolving")

	resolver.release("C-KA")
	require.NoError(t, <-second)

	view, err = svc.View(id)
	require.NoError(t, err)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, models.RegimeInterState, view.TaxRegime)

	_, err = svc.Save(ctx, id)
	require.NoError(t, err)
	req := fake.updates["I-81"]
	assert.Equal(t, "C-KA", req.CustomerSnapshot.CustomerID)
	assert.True(t, dec("222.4").Equal(req.Total))
}

func TestTransaction_FailedResolutionFallsBackToDefaultRegime(t *testing.T) {
	f := newTransactionFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, CreateTransactionRequest{Items: []models.LineItem{widget()}})
	require.NoError(t, err)

	_, err = f.svc.SelectCustomer(ctx, view.SessionID, "C-KA")
	require.NoError(t, err)

	view, err = f.svc.SelectCustomer(ctx, view.SessionID, "C-404")
	require.NoError(t, err, "resolution failures are reported in the view")
	assert.Equal(t, StateFailed, view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, "not_found", view.Error.Kind)
	assert.Empty(t, view.CustomerName)
	assert.Equal(t, models.RegimeIntraState, view.TaxRegime)
	assert.True(t, dec("16.2").Equal(view.Totals.Component(models.ComponentSGST)))
}

func TestTransaction_DeepLinkedCustomer(t *testing.T) {
	f := newTransactionFixture(t)

	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{Kind: models.DocumentQuote, CustomerID: "C-KA"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, models.RegimeInterState, view.TaxRegime)
	assert.Empty(t, view.DueDate, "quotes have no due date")
	assert.Equal(t, 1, f.resolver.callCount())
}

func TestTransaction_InvalidEditsLeaveDocumentUnchanged(t *testing.T) {
	f := newTransactionFixture(t)
	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{Items: []models.LineItem{widget()}})
	require.NoError(t, err)
	id := view.SessionID

	tooMuch := widget()
	tooMuch.Discount = dec("250")
	_, err = f.svc.AppendLine(id, tooMuch)
	assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)

	_, err = f.svc.SetLine(id, 0, tooMuch)
	assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)

	_, err = f.svc.SetLine(id, 3, widget())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	longName := widget()
	longName.Name = strings.Repeat("w", 256)
	_, err = f.svc.AppendLine(id, longName)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.SetCharges(id, dec("-1"), dec("0"))
	assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)

	view, err = f.svc.View(id)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, dec("212.4").Equal(view.Totals.GrandTotal))
}

func TestTransaction_ItemNamesKeepLeadingSigns(t *testing.T) {
	f := newTransactionFixture(t)
	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{Items: []models.LineItem{widget()}})
	require.NoError(t, err)
	id := view.SessionID

	for _, name := range []string{"+5% surcharge", "-10% loyalty discount", "=Net adjustment", "@Home delivery"} {
		item := widget()
		item.Name = name
		view, err = f.svc.AppendLine(id, item)
		require.NoError(t, err, name)
		assert.Equal(t, name, view.Lines[len(view.Lines)-1].Name)
	}
}

func TestTransaction_EditLinesAndCharges(t *testing.T) {
	f := newTransactionFixture(t)
	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{Items: []models.LineItem{widget(), widget()}})
	require.NoError(t, err)
	id := view.SessionID

	cheaper := widget()
	cheaper.Rate = dec("50")
	cheaper.Name = "  <b>Gadget</b> "
	view, err = f.svc.SetLine(id, 1, cheaper)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", view.Lines[1].Name)
	assert.True(t, dec("80").Equal(view.Lines[1].TaxableAmount))
	assert.True(t, dec("14.4").Equal(view.Lines[1].TaxAmount))

	view, err = f.svc.SetCharges(id, dec("50"), dec("-0.4"))
	require.NoError(t, err)
	// 180 + 32.4 + 80 + 14.4 + 50 - 0.4
	assert.True(t, dec("356.4").Equal(view.Totals.GrandTotal), "got %s", view.Totals.GrandTotal)

	view, err = f.svc.RemoveLine(id, 0)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "Gadget", view.Lines[0].Name)
	assert.True(t, dec("144").Equal(view.Totals.GrandTotal), "got %s", view.Totals.GrandTotal)
}

func TestCreateTransaction_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		req  CreateTransactionRequest
	}{
		{"unknown kind", CreateTransactionRequest{Kind: "receipt"}},
		{"quote with invoice id", CreateTransactionRequest{Kind: models.DocumentQuote, InvoiceID: "I-1"}},
		{"negative amount paid", CreateTransactionRequest{AmountPaid: dec("-1")}},
		{"bad issue date", CreateTransactionRequest{IssueDate: "31/01/2026"}},
		{"snapshot for another customer", func() CreateTransactionRequest {
			snap := maharashtraCustomer()
			return CreateTransactionRequest{CustomerID: "C-KA", Snapshot: &snap}
		}()},
		{"bad line", CreateTransactionRequest{Items: []models.LineItem{{Name: strings.Repeat("w", 256), Quantity: dec("1"), Rate: dec("1")}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTransactionFixture(t)
			_, err := f.svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestSaveInvoice_SendsRecomputedDocument(t *testing.T) {
	f := newTransactionFixture(t)
	ctx := context.Background()
	snap := maharashtraCustomer()

	view, err := f.svc.Create(ctx, CreateTransactionRequest{
		InvoiceID:  "I-77",
		Snapshot:   &snap,
		Items:      []models.LineItem{widget()},
		AmountPaid: dec("100"),
		IssueDate:  "2026-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, 0, f.resolver.callCount(), "a persisted snapshot is restored, not re-resolved")
	assert.Equal(t, "2026-02-09", view.DueDate)

	view, err = f.svc.Save(ctx, view.SessionID)
	require.NoError(t, err)
	require.NotNil(t, view.LastSavedAt)

	req, ok := f.ledger.updates["I-77"]
	require.True(t, ok)
	assert.True(t, dec("180").Equal(req.SubTotal))
	assert.True(t, dec("16.2").Equal(req.CGST))
	assert.True(t, dec("16.2").Equal(req.SGST))
	assert.True(t, req.IGST.IsZero())
	assert.True(t, dec("212.4").Equal(req.Total))
	assert.True(t, dec("112.4").Equal(req.BalanceDue))
	assert.Equal(t, models.RegimeIntraState, req.TaxRegime)
	assert.Equal(t, "C-MH", req.CustomerSnapshot.CustomerID)
	require.Len(t, req.Items, 1)
	assert.True(t, dec("212.4").Equal(req.Items[0].Total))
}

func TestSaveInvoice_Preconditions(t *testing.T) {
	ctx := context.Background()
	snap := maharashtraCustomer()

	testCases := []struct {
		name    string
		req     CreateTransactionRequest
		message string
	}{
		{"quote", CreateTransactionRequest{Kind: models.DocumentQuote, Snapshot: &snap, Items: []models.LineItem{widget()}}, "Only an existing invoice can be saved."},
		{"new invoice", CreateTransactionRequest{Snapshot: &snap, Items: []models.LineItem{widget()}}, "Only an existing invoice can be saved."},
		{"no customer", CreateTransactionRequest{InvoiceID: "I-1", Items: []models.LineItem{widget()}}, "Select a customer before saving."},
		{"no lines", CreateTransactionRequest{InvoiceID: "I-1", Snapshot: &snap}, "Add at least one line item."},
		{"unnamed line", CreateTransactionRequest{InvoiceID: "I-1", Snapshot: &snap, Items: []models.LineItem{{Quantity: dec("1"), Rate: dec("10")}}}, "Line 1: item name is required."},
		{"overpaid", CreateTransactionRequest{InvoiceID: "I-1", Snapshot: &snap, Items: []models.LineItem{widget()}, AmountPaid: dec("500")}, "Amount paid 500 exceeds the invoice total 212.4."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTransactionFixture(t)
			view, err := f.svc.Create(ctx, tc.req)
			require.NoError(t, err)

			_, err = f.svc.Save(ctx, view.SessionID)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, tc.message, apperrors.UserMessage(err))
			assert.Empty(t, f.ledger.updates)
		})
	}
}

func TestSaveInvoice_LedgerFailureKeepsSession(t *testing.T) {
	f := newTransactionFixture(t)
	ctx := context.Background()
	snap := maharashtraCustomer()
	f.ledger.updateErr = apperrors.New("UpdateInvoice", apperrors.ErrConflict, "Invoice was modified.")

	view, err := f.svc.Create(ctx, CreateTransactionRequest{InvoiceID: "I-1", Snapshot: &snap, Items: []models.LineItem{widget()}})
	require.NoError(t, err)

	_, err = f.svc.Save(ctx, view.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	view, err = f.svc.AppendLine(view.SessionID, widget())
	require.NoError(t, err, "the session stays editable after a failed save")
	assert.Len(t, view.Lines, 2)
	assert.Nil(t, view.LastSavedAt)
}

func TestDiscardTransaction(t *testing.T) {
	f := newTransactionFixture(t)
	view, err := f.svc.Create(context.Background(), CreateTransactionRequest{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Discard(view.SessionID))

	_, err = f.svc.View(view.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Discard(view.SessionID), apperrors.ErrNotFound)
}

func TestTransactionSessionsAreTyped(t *testing.T) {
	f := newTransactionFixture(t)
	payments := NewPaymentService(f.store, f.resolver, f.ledger, newFakeJournal(), "Petty Cash")

	fake := f.ledger
	fake.invoices["C-MH"] = openInvoices()
	pv, err := payments.Open(context.Background(), "C-MH")
	require.NoError(t, err)

	_, err = f.svc.View(pv.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompute(t *testing.T) {
	svc := NewTransactionService(nil, nil,
		processors.NewTaxRegimeClassifier(processors.MissingPlaceOfSupplyIsIntraState), nil, "MH", "INR")

	t.Run("classified from snapshot", func(t *testing.T) {
		snap := karnatakaCustomer()
		view, err := svc.Compute(ComputeRequest{Items: []models.LineItem{widget()}, Snapshot: &snap})
		require.NoError(t, err)
		assert.Equal(t, models.RegimeInterState, view.TaxRegime)
		assert.Equal(t, []string{"IGST"}, view.TaxLabels)
		assert.True(t, dec("212.4").Equal(view.Totals.GrandTotal))
	})

	t.Run("explicit regime", func(t *testing.T) {
		view, err := svc.Compute(ComputeRequest{Items: []models.LineItem{widget()}, TaxRegime: models.RegimeExempt})
		require.NoError(t, err)
		assert.True(t, dec("180").Equal(view.Totals.GrandTotal))
		assert.Empty(t, view.TaxLabels)
	})

	t.Run("no customer uses default policy", func(t *testing.T) {
		view, err := svc.Compute(ComputeRequest{Items: []models.LineItem{widget()}})
		require.NoError(t, err)
		assert.Equal(t, models.RegimeIntraState, view.TaxRegime)
		assert.Equal(t, "INR", view.Currency)
	})

	t.Run("clamped discount", func(t *testing.T) {
		item := widget()
		item.Discount = dec("500")
		_, err := svc.Compute(ComputeRequest{Items: []models.LineItem{item}})
		assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)

		view, err := svc.Compute(ComputeRequest{Items: []models.LineItem{item}, ClampDiscounts: true})
		require.NoError(t, err)
		assert.True(t, view.Totals.GrandTotal.IsZero())
	})

	t.Run("currency rounding", func(t *testing.T) {
		item := models.LineItem{Name: "Tea", Quantity: dec("3"), Rate: dec("333.33"), TaxRatePercent: dec("5")}
		view, err := svc.Compute(ComputeRequest{Items: []models.LineItem{item}, Currency: "jpy"})
		require.NoError(t, err)
		assert.Equal(t, "JPY", view.Currency)
		assert.True(t, dec("1000").Equal(view.Lines[0].TaxableAmount))
		assert.True(t, dec("50").Equal(view.Lines[0].TaxAmount))
	})

	t.Run("rejects", func(t *testing.T) {
		_, err := svc.Compute(ComputeRequest{TaxRegime: "reverse_charge"})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		_, err = svc.Compute(ComputeRequest{Currency: "RUPEES"})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}
