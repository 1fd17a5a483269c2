package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/database"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeLedger is an in-memory ledger.Client.
type fakeLedger struct {
	mu              sync.Mutex
	customers       map[string]ledger.CustomerRecord
	invoices        map[string][]models.OpenInvoice
	customerCalls   int
	recordErrs      []error
	recordGate      chan struct{}
	recordStarted   chan struct{}
	recorded        []recordedPayment
	updateErr       error
	updates         map[string]ledger.InvoiceUpdateRequest
	nextPaymentNumb int
}

type recordedPayment struct {
	req ledger.PaymentReceivedRequest
	key string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		customers: map[string]ledger.CustomerRecord{},
		invoices:  map[string][]models.OpenInvoice{},
		updates:   map[string]ledger.InvoiceUpdateRequest{},
	}
}

func (f *fakeLedger) GetCustomer(ctx context.Context, customerID string) (*ledger.CustomerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	rec, ok := f.customers[customerID]
	if !ok {
		return nil, apperrors.New("GetCustomer", apperrors.ErrNotFound, "Customer not found.")
	}
	return &rec, nil
}

func (f *fakeLedger) ListOpenInvoices(ctx context.Context, customerID string) ([]models.OpenInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OpenInvoice(nil), f.invoices[customerID]...), nil
}

func (f *fakeLedger) RecordPayment(ctx context.Context, req ledger.PaymentReceivedRequest, key string) (*ledger.PaymentReceivedResult, error) {
	f.mu.Lock()
	gate, started := f.recordGate, f.recordStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, apperrors.Wrap("RecordPayment", apperrors.ErrTransient, context.Cause(ctx), "")
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, recordedPayment{req: req, key: key})
	if len(f.recordErrs) > 0 {
		err := f.recordErrs[0]
		f.recordErrs = f.recordErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextPaymentNumb++
	return &ledger.PaymentReceivedResult{ID: "P-" + req.CustomerID, PaymentNumber: "PR-0001"}, nil
}

func (f *fakeLedger) UpdateInvoice(ctx context.Context, invoiceID string, req ledger.InvoiceUpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[invoiceID] = req
	return nil
}

func (f *fakeLedger) payments() []recordedPayment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPayment(nil), f.recorded...)
}

// stubResolver returns fixed snapshots and counts calls.
type stubResolver struct {
	mu        sync.Mutex
	snapshots map[string]models.CustomerSnapshot
	errs      map[string]error
	calls     int
}

func (r *stubResolver) Resolve(ctx context.Context, customerID string) (*models.CustomerSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if customerID == "" {
		return nil, nil
	}
	r.calls++
	if err, ok := r.errs[customerID]; ok {
		return nil, err
	}
	snap, ok := r.snapshots[customerID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (r *stubResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// gatedResolver blocks each resolution until the test releases it. It ignores
// cancellation so that late results can be observed.
type gatedResolver struct {
	snapshots map[string]models.CustomerSnapshot
	gates     map[string]chan struct{}
	started   chan string

	mu   sync.Mutex
	ctxs map[string]context.Context
}

func newGatedResolver(snapshots map[string]models.CustomerSnapshot) *gatedResolver {
	r := &gatedResolver{
		snapshots: snapshots,
		gates:     map[string]chan struct{}{},
		started:   make(chan string, 8),
		ctxs:      map[string]context.Context{},
	}
	for id := range snapshots {
		r.gates[id] = make(chan struct{})
	}
	return r
}

func (r *gatedResolver) Resolve(ctx context.Context, customerID string) (*models.CustomerSnapshot, error) {
	r.mu.Lock()
	r.ctxs[customerID] = ctx
	r.mu.Unlock()

	r.started <- customerID
	<-r.gates[customerID]
	snap := r.snapshots[customerID]
	return &snap, nil
}

func (r *gatedResolver) release(customerID string) {
	close(r.gates[customerID])
}

func (r *gatedResolver) ctxOf(customerID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctxs[customerID]
}

// fakeJournal records journal calls in memory.
type fakeJournal struct {
	mu        sync.Mutex
	begun     []database.JournalEntry
	completed map[string]string
	failed    map[string]error
	beginErr  error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{completed: map[string]string{}, failed: map[string]error{}}
}

func (j *fakeJournal) Begin(ctx context.Context, entry database.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.beginErr != nil {
		return j.beginErr
	}
	j.begun = append(j.begun, entry)
	return nil
}

func (j *fakeJournal) Complete(ctx context.Context, key, remoteID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completed[key] = remoteID
	return nil
}

func (j *fakeJournal) Fail(ctx context.Context, key string, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failed[key] = cause
	return nil
}

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(time.Minute, time.Minute)
}

func maharashtraCustomer() models.CustomerSnapshot {
	return models.CustomerSnapshot{
		CustomerID:    "C-MH",
		DisplayName:   "Pune Traders",
		CustomerName:  "Pune Traders LLP",
		GSTTreatment:  models.GSTRegisteredRegular,
		TaxPreference: models.TaxPreferenceTaxable,
		GSTIN:         "27AAPFU0939F1ZV",
		PAN:           "AAPFU0939F",
		PlaceOfSupply: "MH",
		Currency:      "INR",
		PaymentTerms:  models.PaymentTerms{Name: "Net 30", Days: 30},
		BillingAddress: models.Address{
			Street1: "1 FC Road", City: "Pune", State: "Maharashtra", StateCode: "MH", Zip: "411004", Country: "India",
		},
	}
}

func karnatakaCustomer() models.CustomerSnapshot {
	return models.CustomerSnapshot{
		CustomerID:    "C-KA",
		DisplayName:   "Bengaluru Stores",
		GSTTreatment:  models.GSTConsumer,
		TaxPreference: models.TaxPreferenceTaxable,
		PlaceOfSupply: "KA",
		Currency:      "INR",
		PaymentTerms:  models.DueOnReceipt(),
	}
}

func exemptCustomer() models.CustomerSnapshot {
	return models.CustomerSnapshot{
		CustomerID:      "C-EX",
		DisplayName:     "Charitable Trust",
		GSTTreatment:    models.GSTConsumer,
		TaxPreference:   models.TaxPreferenceExempt,
		ExemptionReason: "Charitable activity",
		PlaceOfSupply:   "KA",
		Currency:        "INR",
		PaymentTerms:    models.DueOnReceipt(),
	}
}

func widget() models.LineItem {
	return models.LineItem{
		Name:           "Widget",
		Quantity:       dec("2"),
		Rate:           dec("100"),
		Discount:       dec("20"),
		TaxRatePercent: dec("18"),
	}
}
