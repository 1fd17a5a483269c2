package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/processors"
	"github.com/username/ledgerdesk/backend/src/security/validation"
)

const transactionSessionKind = "transaction"

// CreateTransactionRequest starts an invoice or quote session. CustomerID deep-links a
// customer; Snapshot restores the one persisted on an existing document.
type CreateTransactionRequest struct {
	Kind            models.DocumentKind      `json:"kind"`
	CustomerID      string                   `json:"customerId,omitempty"`
	InvoiceID       string                   `json:"invoiceId,omitempty"`
	Snapshot        *models.CustomerSnapshot `json:"snapshot,omitempty"`
	Items           []models.LineItem        `json:"items,omitempty"`
	ShippingCharges decimal.Decimal          `json:"shippingCharges"`
	Adjustment      decimal.Decimal          `json:"adjustment"`
	AmountPaid      decimal.Decimal          `json:"amountPaid"`
	IssueDate       string                   `json:"issueDate,omitempty"`
}

// TransactionView is the view model of a transaction session.
type TransactionView struct {
	SessionID string              `json:"sessionId"`
	Kind      models.DocumentKind `json:"kind"`
	InvoiceID string              `json:"invoiceId,omitempty"`
	BootstrapStatus

	TaxRegime       models.TaxRegime      `json:"taxRegime"`
	TaxLabels       []string              `json:"taxLabels"`
	CustomerName    string                `json:"customerName,omitempty"`
	BillingAddress  []string              `json:"billingAddress,omitempty"`
	ShippingAddress []string              `json:"shippingAddress,omitempty"`
	Currency        string                `json:"currency"`
	PaymentTerms    *models.PaymentTerms  `json:"paymentTerms,omitempty"`
	IssueDate       string                `json:"issueDate"`
	DueDate         string                `json:"dueDate,omitempty"`
	Lines           []models.ComputedLine `json:"lines"`
	Totals          models.DocumentTotals `json:"totals"`
	AmountPaid      decimal.Decimal       `json:"amountPaid"`
	BalanceDue      decimal.Decimal       `json:"balanceDue"`
	LastSavedAt     *time.Time            `json:"lastSavedAt,omitempty"`
}

// ComputeRequest is a document computed without a session. The regime is taken from
// TaxRegime when set, otherwise classified from Snapshot.
type ComputeRequest struct {
	Items           []models.LineItem        `json:"items"`
	ShippingCharges decimal.Decimal          `json:"shippingCharges"`
	Adjustment      decimal.Decimal          `json:"adjustment"`
	Currency        string                   `json:"currency,omitempty"`
	TaxRegime       models.TaxRegime         `json:"taxRegime,omitempty"`
	Snapshot        *models.CustomerSnapshot `json:"snapshot,omitempty"`
	ClampDiscounts  bool                     `json:"clampDiscounts,omitempty"`
}

// DocumentView is the result of Compute.
type DocumentView struct {
	Currency  string                `json:"currency"`
	TaxRegime models.TaxRegime      `json:"taxRegime"`
	TaxLabels []string              `json:"taxLabels"`
	Lines     []models.ComputedLine `json:"lines"`
	Totals    models.DocumentTotals `json:"totals"`
}

// TransactionSession is one invoice or quote being edited.
type TransactionSession struct {
	closeOnce

	id         string
	kind       models.DocumentKind
	invoiceID  string
	issueDate  time.Time
	amountPaid decimal.Decimal
	bootstrap  *TransactionBootstrap
	ctx        context.Context
	cancel     context.CancelCauseFunc

	mu               sync.Mutex
	worksheet        *processors.Worksheet
	regime           models.TaxRegime
	syncedGeneration uint64
	saving           bool
	lastSavedAt      time.Time
}

func (s *TransactionSession) SessionID() string { return s.id }
func (s *TransactionSession) Kind() string      { return transactionSessionKind }

func (s *TransactionSession) Close() {
	if !s.markClosed() {
		return
	}
	s.cancel(ErrSessionDiscarded)
	s.bootstrap.Discard()
}

type transactionServiceImpl struct {
	store           *SessionStore
	resolver        CustomerSnapshotResolver
	classifier      processors.TaxRegimeClassifier
	client          ledger.Client
	homeState       string
	defaultCurrency string
	now             func() time.Time
}

// NewTransactionService creates the service driving invoice and quote sessions.
// homeState is the state of the issuing entity.
func NewTransactionService(
	store *SessionStore,
	resolver CustomerSnapshotResolver,
	classifier processors.TaxRegimeClassifier,
	client ledger.Client,
	homeState, defaultCurrency string,
) TransactionService {
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &transactionServiceImpl{
		store:           store,
		resolver:        resolver,
		classifier:      classifier,
		client:          client,
		homeState:       homeState,
		defaultCurrency: strings.ToUpper(defaultCurrency),
		now:             time.Now,
	}
}

func (s *transactionServiceImpl) Create(ctx context.Context, req CreateTransactionRequest) (*TransactionView, error) {
	const op = "CreateTransaction"

	if req.Kind == "" {
		req.Kind = models.DocumentInvoice
	}
	if !req.Kind.Valid() {
		return nil, apperrors.Validationf(op, "Unknown document kind %q.", req.Kind)
	}
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	if req.InvoiceID != "" && req.Kind != models.DocumentInvoice {
		return nil, apperrors.Validationf(op, "Only invoices can reference an existing invoice.")
	}
	if err := validation.ValidateNonNegativeAmount(req.AmountPaid, "Amount paid"); err != nil {
		return nil, fieldError(op, err)
	}

	issueDate := s.today()
	if strings.TrimSpace(req.IssueDate) != "" {
		d, err := validation.ValidateDateString(req.IssueDate, "Issue date")
		if err != nil {
			return nil, fieldError(op, err)
		}
		issueDate = d
	}

	var restored *models.CustomerSnapshot
	if req.Snapshot != nil {
		snap, err := NormalizeSnapshot(*req.Snapshot)
		if err != nil {
			return nil, err
		}
		if id := strings.TrimSpace(req.CustomerID); id != "" && id != snap.CustomerID {
			return nil, apperrors.Validationf(op, "Customer id does not match the customer snapshot.")
		}
		restored = &snap
	}

	items, err := cleanLineItems(op, req.Items)
	if err != nil {
		return nil, err
	}

	id := NewSessionID()
	sessionCtx, cancel := context.WithCancelCause(context.Background())
	session := &TransactionSession{
		id:         id,
		kind:       req.Kind,
		invoiceID:  req.InvoiceID,
		issueDate:  issueDate,
		amountPaid: models.RoundMoney(req.AmountPaid, s.defaultCurrency),
		bootstrap:  NewTransactionBootstrap(s.resolver, id),
		ctx:        sessionCtx,
		cancel:     cancel,
	}
	session.bootstrap.now = s.now

	regime := s.classifier.Classify(restored, s.homeState)
	currency := s.currencyOf(restored)
	session.worksheet = processors.NewWorksheet(processors.NewLineItemCalculator(currency), processors.SplitForRegime(regime))
	session.regime = regime
	if err := session.worksheet.Load(items); err != nil {
		cancel(ErrSessionDiscarded)
		return nil, err
	}
	if err := session.worksheet.SetCharges(req.ShippingCharges, req.Adjustment); err != nil {
		cancel(ErrSessionDiscarded)
		return nil, err
	}

	var status BootstrapStatus
	if restored != nil {
		status = session.bootstrap.Restore(*restored)
	} else {
		status = session.bootstrap.Status()
	}
	session.syncedGeneration = status.Generation
	s.store.Put(session)

	log := logger.WithSession(ctx, transactionSessionKind, id)
	log.Info("Transaction session created", "kind", req.Kind, "invoiceID", req.InvoiceID, "restored", restored != nil, "lines", len(items))

	if restored == nil && strings.TrimSpace(req.CustomerID) != "" {
		return s.SelectCustomer(ctx, id, req.CustomerID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	return s.viewLocked(session, s.syncLocked(session))
}

func (s *transactionServiceImpl) View(sessionID string) (*TransactionView, error) {
	session, err := getSession[*TransactionSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	status := s.syncLocked(session)
	return s.viewLocked(session, status)
}

func (s *transactionServiceImpl) SelectCustomer(ctx context.Context, sessionID, customerID string) (*TransactionView, error) {
	session, err := getSession[*TransactionSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	saving := session.saving
	session.mu.Unlock()
	if saving {
		return nil, apperrors.New("SelectCustomer", apperrors.ErrConflict, "The document is being saved. Try again when the save completes.")
	}

	reqCtx, stop := withSessionContext(ctx, session.ctx)
	defer stop()
	session.bootstrap.SelectCustomer(reqCtx, customerID)

	session.mu.Lock()
	defer session.mu.Unlock()
	status := s.syncLocked(session)
	return s.viewLocked(session, status)
}

func (s *transactionServiceImpl) SetLine(sessionID string, index int, item models.LineItem) (*TransactionView, error) {
	return s.edit(sessionID, "SetLine", func(ws *processors.Worksheet) error {
		cleaned, err := cleanLineItem("SetLine", item)
		if err != nil {
			return err
		}
		return ws.SetLine(index, cleaned)
	})
}

func (s *transactionServiceImpl) AppendLine(sessionID string, item models.LineItem) (*TransactionView, error) {
	return s.edit(sessionID, "AppendLine", func(ws *processors.Worksheet) error {
		cleaned, err := cleanLineItem("AppendLine", item)
		if err != nil {
			return err
		}
		_, err = ws.AppendLine(cleaned)
		return err
	})
}

func (s *transactionServiceImpl) RemoveLine(sessionID string, index int) (*TransactionView, error) {
	return s.edit(sessionID, "RemoveLine", func(ws *processors.Worksheet) error {
		return ws.RemoveLine(index)
	})
}

func (s *transactionServiceImpl) SetCharges(sessionID string, shipping, adjustment decimal.Decimal) (*TransactionView, error) {
	return s.edit(sessionID, "SetCharges", func(ws *processors.Worksheet) error {
		return ws.SetCharges(shipping, adjustment)
	})
}

func (s *transactionServiceImpl) edit(sessionID, op string, apply func(*processors.Worksheet) error) (*TransactionView, error) {
	session, err := getSession[*TransactionSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.saving {
		return nil, apperrors.New(op, apperrors.ErrConflict, "The document is being saved. Try again when the save completes.")
	}
	status := s.syncLocked(session)
	if err := apply(session.worksheet); err != nil {
		return nil, err
	}
	return s.viewLocked(session, status)
}

// Save sends the recomputed invoice to the ledger. The session stays usable on failure.
func (s *transactionServiceImpl) Save(ctx context.Context, sessionID string) (*TransactionView, error) {
	const op = "SaveInvoice"

	session, err := getSession[*TransactionSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	log := logger.WithSession(ctx, transactionSessionKind, sessionID)

	session.mu.Lock()
	if session.saving {
		session.mu.Unlock()
		return nil, apperrors.New(op, apperrors.ErrConflict, "The document is already being saved.")
	}
	status := s.syncLocked(session)
	req, err := s.invoiceUpdateLocked(op, session, status)
	if err != nil {
		session.mu.Unlock()
		return nil, err
	}
	session.saving = true
	session.mu.Unlock()

	reqCtx, stop := withSessionContext(logger.ToContext(ctx, log), session.ctx)
	defer stop()
	saveErr := s.client.UpdateInvoice(reqCtx, session.invoiceID, req)

	session.mu.Lock()
	defer session.mu.Unlock()
	session.saving = false
	if saveErr != nil {
		if errors.Is(context.Cause(reqCtx), ErrSessionDiscarded) {
			return nil, ErrSessionNotFound
		}
		log.Warn("Invoice save failed", "invoiceID", session.invoiceID, "error", saveErr)
		return nil, saveErr
	}
	session.lastSavedAt = s.now()
	log.Info("Invoice saved", "invoiceID", session.invoiceID, "total", req.Total.String())
	return s.viewLocked(session, s.syncLocked(session))
}

func (s *transactionServiceImpl) invoiceUpdateLocked(op string, session *TransactionSession, status BootstrapStatus) (ledger.InvoiceUpdateRequest, error) {
	if session.kind != models.DocumentInvoice || session.invoiceID == "" {
		return ledger.InvoiceUpdateRequest{}, apperrors.Validationf(op, "Only an existing invoice can be saved.")
	}
	if status.State != StateReady || status.Snapshot == nil {
		return ledger.InvoiceUpdateRequest{}, apperrors.Validationf(op, "Select a customer before saving.")
	}
	if session.worksheet.Len() == 0 {
		return ledger.InvoiceUpdateRequest{}, apperrors.Validationf(op, "Add at least one line item.")
	}
	for i, item := range session.worksheet.Items() {
		if strings.TrimSpace(item.Name) == "" {
			return ledger.InvoiceUpdateRequest{}, apperrors.Validationf(op, "Line %d: item name is required.", i+1)
		}
	}
	totals, err := session.worksheet.Totals()
	if err != nil {
		return ledger.InvoiceUpdateRequest{}, err
	}
	balanceDue := totals.GrandTotal.Sub(session.amountPaid)
	if balanceDue.IsNegative() {
		return ledger.InvoiceUpdateRequest{}, apperrors.Validationf(op, "Amount paid %s exceeds the invoice total %s.", session.amountPaid, totals.GrandTotal)
	}

	return ledger.InvoiceUpdateRequest{
		Items:            ledger.InvoiceItemsFromLines(session.worksheet.Lines()),
		SubTotal:         totals.SubTotal,
		CGST:             totals.Component(models.ComponentCGST),
		SGST:             totals.Component(models.ComponentSGST),
		IGST:             totals.Component(models.ComponentIGST),
		ShippingCharges:  totals.ShippingCharges,
		Adjustment:       totals.Adjustment,
		Total:            totals.GrandTotal,
		BalanceDue:       balanceDue,
		Currency:         session.worksheet.Currency(),
		TaxRegime:        session.regime,
		CustomerSnapshot: *status.Snapshot,
	}, nil
}

func (s *transactionServiceImpl) Discard(sessionID string) error {
	if !s.store.Delete(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *transactionServiceImpl) Compute(req ComputeRequest) (*DocumentView, error) {
	const op = "ComputeDocument"

	var snapshot *models.CustomerSnapshot
	if req.Snapshot != nil {
		snap, err := NormalizeSnapshot(*req.Snapshot)
		if err != nil {
			return nil, err
		}
		snapshot = &snap
	}

	regime := req.TaxRegime
	switch regime {
	case "":
		regime = s.classifier.Classify(snapshot, s.homeState)
	case models.RegimeIntraState, models.RegimeInterState, models.RegimeExempt:
	default:
		return nil, apperrors.Validationf(op, "Unknown tax regime %q.", regime)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.ValidateCurrencyCode(currency); err != nil {
		return nil, fieldError(op, err)
	}
	if currency == "" {
		currency = s.currencyOf(snapshot)
	}

	items, err := cleanLineItems(op, req.Items)
	if err != nil {
		return nil, err
	}
	if req.ClampDiscounts {
		items = lo.Map(items, func(item models.LineItem, _ int) models.LineItem {
			return processors.ClampDiscount(item)
		})
	}

	split := processors.SplitForRegime(regime)
	totals, lines, err := processors.NewLineItemCalculator(currency).ComputeDocument(items, processors.DocumentOptions{
		ShippingCharges: req.ShippingCharges,
		Adjustment:      req.Adjustment,
		Split:           split,
	})
	if err != nil {
		return nil, err
	}
	return &DocumentView{
		Currency:  currency,
		TaxRegime: regime,
		TaxLabels: taxLabels(split, currency),
		Lines:     lines,
		Totals:    totals,
	}, nil
}

// syncLocked reads the bootstrap status under session.mu and rebases the worksheet onto it
// when it is newer than the last one applied. The returned status is the one the worksheet
// now follows.
func (s *transactionServiceImpl) syncLocked(session *TransactionSession) BootstrapStatus {
	status := session.bootstrap.Status()
	s.rebaseLocked(session, status)
	return status
}

// rebaseLocked moves the regime and currency to the snapshot of status. Generations only
// move forward: a status older than the one already applied is ignored.
func (s *transactionServiceImpl) rebaseLocked(session *TransactionSession, status BootstrapStatus) {
	if status.Generation <= session.syncedGeneration {
		return
	}
	var snapshot *models.CustomerSnapshot
	if status.State == StateReady {
		snapshot = status.Snapshot
	}
	regime := s.classifier.Classify(snapshot, s.homeState)
	calc := processors.NewLineItemCalculator(s.currencyOf(snapshot))
	if err := session.worksheet.Rebase(calc, processors.SplitForRegime(regime)); err != nil {
		logger.L.Error("Failed to recompute lines for new customer", "sessionID", session.id, "generation", status.Generation, "error", err)
		return
	}
	session.regime = regime
	session.syncedGeneration = status.Generation
}

func (s *transactionServiceImpl) viewLocked(session *TransactionSession, status BootstrapStatus) (*TransactionView, error) {
	totals, err := session.worksheet.Totals()
	if err != nil {
		return nil, err
	}
	currency := session.worksheet.Currency()

	view := &TransactionView{
		SessionID:       session.id,
		Kind:            session.kind,
		InvoiceID:       session.invoiceID,
		BootstrapStatus: status,
		TaxRegime:       session.regime,
		TaxLabels:       taxLabels(session.worksheet.Split(), currency),
		Currency:        currency,
		IssueDate:       session.issueDate.Format(validation.ISODateLayout),
		Lines:           session.worksheet.Lines(),
		Totals:          totals,
		AmountPaid:      session.amountPaid,
		BalanceDue:      totals.GrandTotal.Sub(session.amountPaid),
	}
	if status.State == StateReady && status.Snapshot != nil {
		snap := status.Snapshot
		terms := snap.PaymentTerms
		view.CustomerName = snap.Name()
		view.BillingAddress = snap.BillingAddress.Lines()
		view.ShippingAddress = snap.ShippingAddress.Lines()
		view.PaymentTerms = &terms
		if session.kind == models.DocumentInvoice {
			view.DueDate = terms.DueDate(session.issueDate).Format(validation.ISODateLayout)
		}
	}
	if !session.lastSavedAt.IsZero() {
		savedAt := session.lastSavedAt
		view.LastSavedAt = &savedAt
	}
	return view, nil
}

func (s *transactionServiceImpl) currencyOf(snapshot *models.CustomerSnapshot) string {
	if snapshot != nil && snapshot.Currency != "" {
		return snapshot.Currency
	}
	return s.defaultCurrency
}

func (s *transactionServiceImpl) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func taxLabels(split processors.SplitPolicy, currency string) []string {
	return lo.Map(split.Split(decimal.Zero, currency), func(c models.TaxComponent, _ int) string {
		return c.Name
	})
}

func cleanLineItems(op string, items []models.LineItem) ([]models.LineItem, error) {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		cleaned, err := cleanLineItem(op, item)
		if err != nil {
			return nil, apperrors.Validationf(op, "Line %d: %s", i+1, apperrors.UserMessage(err))
		}
		out[i] = cleaned
	}
	return out, nil
}

// cleanLineItem sanitizes the free-text fields of a line. Amounts are checked by the calculator.
// Names are catalogue text sent as JSON, so a leading "+", "-", "=" or "@" is kept as typed.
func cleanLineItem(op string, item models.LineItem) (models.LineItem, error) {
	item.ItemID = strings.TrimSpace(item.ItemID)
	item.Name = validation.CleanText(item.Name)
	item.Description = validation.CleanText(item.Description)
	item.HSNSAC = strings.ToUpper(validation.CleanText(item.HSNSAC))

	err := firstError(
		validation.ValidateStringMaxLength(item.Name, validation.DefaultMaxStringLength, "Item name"),
		validation.ValidateStringMaxLength(item.Description, validation.MaxNotesLength, "Description"),
		validation.ValidateStringMaxLength(item.HSNSAC, 8, "HSN/SAC code"),
	)
	if err != nil {
		return item, fieldError(op, err)
	}
	return item, nil
}
