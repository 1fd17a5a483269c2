package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/database"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/security/validation"
)

const paymentSessionKind = "payment"

// PaymentDetailsInput is the operator-entered part of a payment. Blank fields fall back
// to today, cash and the default deposit account.
type PaymentDetailsInput struct {
	Date            string           `json:"date,omitempty"`
	Mode            string           `json:"mode,omitempty"`
	DepositTo       string           `json:"depositTo,omitempty"`
	ReferenceNumber string           `json:"referenceNumber,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	AmountReceived  *decimal.Decimal `json:"amountReceived,omitempty"`
}

// SubmissionReceipt confirms a payment recorded by the ledger.
type SubmissionReceipt struct {
	PaymentID      string          `json:"paymentId"`
	PaymentNumber  string          `json:"paymentNumber,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Amount         decimal.Decimal `json:"amount"`
	InvoiceCount   int             `json:"invoiceCount"`
	SubmittedAt    time.Time       `json:"submittedAt"`
}

// PaymentView is the view model of a payment session.
type PaymentView struct {
	SessionID           string                     `json:"sessionId"`
	Customer            models.CustomerSnapshot    `json:"customer"`
	Currency            string                     `json:"currency"`
	Invoices            []models.PaymentAllocation `json:"invoices"`
	Details             PaymentDetailsInput        `json:"details"`
	TotalAmount         decimal.Decimal            `json:"totalAmount"`
	SelectedCount       int                        `json:"selectedCount"`
	Unallocated         *decimal.Decimal           `json:"unallocated,omitempty"`
	CanSubmit           bool                       `json:"canSubmit"`
	SubmitBlockedReason string                     `json:"submitBlockedReason,omitempty"`
	Submitting          bool                       `json:"submitting"`
	Receipt             *SubmissionReceipt         `json:"receipt,omitempty"`
}

// PaymentSession is one payment being recorded for one customer.
type PaymentSession struct {
	id       string
	customer models.CustomerSnapshot
	ctx      context.Context
	cancel   context.CancelCauseFunc

	closeOnce

	mu         sync.Mutex
	engine     *PaymentAllocationEngine
	details    models.PaymentDetails
	submitting bool
	receipt    *SubmissionReceipt
}

func (s *PaymentSession) SessionID() string { return s.id }
func (s *PaymentSession) Kind() string      { return paymentSessionKind }
func (s *PaymentSession) Close() {
	s.markClosed()
	s.cancel(ErrSessionDiscarded)
}

type paymentServiceImpl struct {
	store          *SessionStore
	resolver       CustomerSnapshotResolver
	client         ledger.Client
	journal        SubmissionJournal
	defaultDeposit string
	now            func() time.Time
}

// NewPaymentService creates the service driving payment sessions.
func NewPaymentService(
	store *SessionStore,
	resolver CustomerSnapshotResolver,
	client ledger.Client,
	journal SubmissionJournal,
	defaultDepositAccount string,
) PaymentService {
	return &paymentServiceImpl{
		store:          store,
		resolver:       resolver,
		client:         client,
		journal:        journal,
		defaultDeposit: strings.TrimSpace(defaultDepositAccount),
		now:            time.Now,
	}
}

func (s *paymentServiceImpl) Open(ctx context.Context, customerID string) (*PaymentView, error) {
	const op = "OpenPayment"

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, apperrors.Validationf(op, "Select a customer to record a payment.")
	}
	snapshot, err := s.resolver.Resolve(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apperrors.New(op, apperrors.ErrNotFound, fmt.Sprintf("Customer %s could not be resolved.", customerID))
	}
	invoices, err := s.client.ListOpenInvoices(ctx, customerID)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancelCause(context.Background())
	session := &PaymentSession{
		id:       NewSessionID(),
		customer: *snapshot,
		ctx:      sessionCtx,
		cancel:   cancel,
		engine:   NewPaymentAllocationEngine(invoices, snapshot.Currency),
		details: models.PaymentDetails{
			Date:      s.today(),
			Mode:      models.ModeCash,
			DepositTo: s.defaultDeposit,
		},
	}
	s.store.Put(session)

	logger.WithSession(ctx, paymentSessionKind, session.id).Info("Payment session opened",
		"customerID", customerID, "openInvoices", len(session.engine.order))

	session.mu.Lock()
	defer session.mu.Unlock()
	return s.viewLocked(session), nil
}

func (s *paymentServiceImpl) View(sessionID string) (*PaymentView, error) {
	session, err := getSession[*PaymentSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return s.viewLocked(session), nil
}

func (s *paymentServiceImpl) Toggle(sessionID, invoiceID string) (*PaymentView, error) {
	return s.mutate(sessionID, func(session *PaymentSession) error {
		_, err := session.engine.Toggle(invoiceID)
		return err
	})
}

func (s *paymentServiceImpl) SetAmount(sessionID, invoiceID string, amount decimal.Decimal) (*PaymentView, error) {
	return s.mutate(sessionID, func(session *PaymentSession) error {
		_, err := session.engine.SetAmount(invoiceID, amount)
		return err
	})
}

// AutoAllocate spreads amount oldest-first and records it as the amount received.
func (s *paymentServiceImpl) AutoAllocate(sessionID string, amount decimal.Decimal) (*PaymentView, error) {
	return s.mutate(sessionID, func(session *PaymentSession) error {
		if _, err := session.engine.AutoAllocate(amount); err != nil {
			return err
		}
		received := models.RoundMoney(amount, session.customer.Currency)
		session.details.AmountReceived = &received
		return nil
	})
}

func (s *paymentServiceImpl) UpdateDetails(sessionID string, input PaymentDetailsInput) (*PaymentView, error) {
	return s.mutate(sessionID, func(session *PaymentSession) error {
		details, err := s.parseDetails(session, input)
		if err != nil {
			return err
		}
		session.details = details
		return nil
	})
}

func (s *paymentServiceImpl) parseDetails(session *PaymentSession, input PaymentDetailsInput) (models.PaymentDetails, error) {
	const op = "UpdatePaymentDetails"

	details := models.PaymentDetails{Date: s.today(), Mode: models.ModeCash, DepositTo: s.defaultDeposit}

	if strings.TrimSpace(input.Date) != "" {
		d, err := validation.ValidateDateString(input.Date, "Payment date")
		if err != nil {
			return details, fieldError(op, err)
		}
		details.Date = d
	}

	if mode := strings.ToLower(strings.TrimSpace(input.Mode)); mode != "" {
		details.Mode = models.PaymentMode(mode)
		if !details.Mode.Valid() {
			return details, apperrors.Validationf(op, "Unknown payment mode %q.", input.Mode)
		}
	}

	if deposit := validation.CleanText(input.DepositTo); deposit != "" {
		details.DepositTo = deposit
	}
	details.ReferenceNumber = strings.TrimSpace(input.ReferenceNumber)
	details.Notes = validation.CleanText(input.Notes)

	err := firstError(
		validation.ValidateStringMaxLength(details.DepositTo, validation.DefaultMaxStringLength, "Deposit account"),
		validation.ValidateReferenceNumber(details.ReferenceNumber),
		validation.ValidateStringMaxLength(details.Notes, validation.MaxNotesLength, "Notes"),
		validation.ScanFreeText(details.Notes, "Notes", session.id),
	)
	if err != nil {
		return details, fieldError(op, err)
	}

	if input.AmountReceived != nil {
		if err := validation.ValidateNonNegativeAmount(*input.AmountReceived, "Amount received"); err != nil {
			return details, fieldError(op, err)
		}
		received := models.RoundMoney(*input.AmountReceived, session.customer.Currency)
		details.AmountReceived = &received
	}
	return details, nil
}

func (s *paymentServiceImpl) mutate(sessionID string, apply func(*PaymentSession) error) (*PaymentView, error) {
	session, err := getSession[*PaymentSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if err := session.guardLocked(); err != nil {
		return nil, err
	}
	if err := apply(session); err != nil {
		return nil, err
	}
	return s.viewLocked(session), nil
}

// Submit records the payment with the ledger. On failure local state is kept and the
// same payload may be submitted again under the same idempotency key.
func (s *paymentServiceImpl) Submit(ctx context.Context, sessionID string) (*SubmissionReceipt, error) {
	const op = "SubmitPayment"

	session, err := getSession[*PaymentSession](s.store, sessionID)
	if err != nil {
		return nil, err
	}
	log := logger.WithSession(ctx, paymentSessionKind, sessionID)

	session.mu.Lock()
	if err := session.guardLocked(); err != nil {
		session.mu.Unlock()
		return nil, err
	}
	if reason := session.blockedReasonLocked(); reason != "" {
		session.mu.Unlock()
		return nil, apperrors.Validationf(op, "%s", reason)
	}
	req := session.paymentRequestLocked()
	paid := lo.Reduce(req.Invoices, func(sum decimal.Decimal, line ledger.PaymentInvoiceLine, _ int) decimal.Decimal {
		return sum.Add(line.PaymentAmount)
	}, decimal.Zero)
	if !paid.Equal(req.Amount) || !req.Amount.Equal(session.engine.Total()) {
		session.mu.Unlock()
		return nil, apperrors.Invariantf(op, "Payment amount %s does not equal the allocated total %s.", req.Amount, paid)
	}
	fingerprint, err := database.Fingerprint(req)
	if err != nil {
		session.mu.Unlock()
		return nil, apperrors.Wrap(op, apperrors.ErrInvariantViolation, err, "")
	}
	session.submitting = true
	session.mu.Unlock()

	key := sessionID + ":" + fingerprint[:16]

	finish := func(receipt *SubmissionReceipt) {
		session.mu.Lock()
		session.submitting = false
		if receipt != nil {
			session.receipt = receipt
		}
		session.mu.Unlock()
	}

	reqCtx, stop := withSessionContext(logger.ToContext(ctx, log), session.ctx)
	defer stop()

	entry := database.JournalEntry{
		IdempotencyKey: key,
		SessionID:      sessionID,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Fingerprint:    fingerprint,
	}
	if err := s.journal.Begin(reqCtx, entry); err != nil {
		finish(nil)
		return nil, err
	}

	result, err := s.client.RecordPayment(reqCtx, req, key)
	if err != nil {
		if failErr := s.journal.Fail(context.WithoutCancel(reqCtx), key, err); failErr != nil {
			log.Error("Failed to mark payment submission as failed", "idempotencyKey", key, "error", failErr)
		}
		finish(nil)
		log.Warn("Payment submission failed", "customerID", req.CustomerID, "amount", req.Amount.String(), "error", err)
		return nil, err
	}

	if err := s.journal.Complete(context.WithoutCancel(reqCtx), key, result.ID); err != nil {
		log.Error("Payment recorded but journal update failed", "idempotencyKey", key, "paymentID", result.ID, "error", err)
	}

	receipt := &SubmissionReceipt{
		PaymentID:      result.ID,
		PaymentNumber:  result.PaymentNumber,
		IdempotencyKey: key,
		Amount:         req.Amount,
		InvoiceCount:   len(req.Invoices),
		SubmittedAt:    s.now(),
	}
	finish(receipt)
	log.Info("Payment recorded", "customerID", req.CustomerID, "paymentID", result.ID,
		"amount", req.Amount.String(), "invoices", len(req.Invoices))
	copied := *receipt
	return &copied, nil
}

func (s *paymentServiceImpl) Discard(sessionID string) error {
	session, err := getSession[*PaymentSession](s.store, sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	if session.submitting {
		session.mu.Unlock()
		return ErrSubmissionInProgress
	}
	// Closed under the lock: no submission can start once the check has passed.
	session.markClosed()
	session.mu.Unlock()

	s.store.Delete(sessionID)
	return nil
}

func (s *paymentServiceImpl) viewLocked(session *PaymentSession) *PaymentView {
	total := session.engine.Total()
	view := &PaymentView{
		SessionID:     session.id,
		Customer:      session.customer,
		Currency:      session.customer.Currency,
		Invoices:      session.engine.Allocations(),
		TotalAmount:   total,
		SelectedCount: session.engine.Count(),
		Submitting:    session.submitting,
		Details: PaymentDetailsInput{
			Date:            session.details.Date.Format(validation.ISODateLayout),
			Mode:            string(session.details.Mode),
			DepositTo:       session.details.DepositTo,
			ReferenceNumber: session.details.ReferenceNumber,
			Notes:           session.details.Notes,
			AmountReceived:  session.details.AmountReceived,
		},
	}
	if session.details.AmountReceived != nil {
		unallocated := session.details.AmountReceived.Sub(total)
		view.Unallocated = &unallocated
	}
	if session.receipt != nil {
		receipt := *session.receipt
		view.Receipt = &receipt
		view.SubmitBlockedReason = "This payment has already been recorded."
	} else {
		view.SubmitBlockedReason = session.blockedReasonLocked()
	}
	view.CanSubmit = view.SubmitBlockedReason == "" && !session.submitting
	return view
}

func (s *paymentServiceImpl) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *PaymentSession) guardLocked() error {
	if s.Closed() {
		return ErrSessionNotFound
	}
	if s.receipt != nil {
		return ErrAlreadySubmitted
	}
	if s.submitting {
		return ErrSubmissionInProgress
	}
	return nil
}

// blockedReasonLocked returns why the payment cannot be submitted, or "".
func (s *PaymentSession) blockedReasonLocked() string {
	switch {
	case s.customer.CustomerID == "":
		return "Select a customer before recording a payment."
	case len(s.engine.Payable()) == 0:
		return "Select at least one invoice and enter a payment amount."
	case !s.details.Mode.Valid():
		return "Select a payment mode."
	case s.details.DepositTo == "":
		return "Select the account the payment was deposited to."
	case s.details.AmountReceived != nil && !s.details.AmountReceived.Equal(s.engine.Total()):
		return fmt.Sprintf("Amount received (%s) does not match the total allocated (%s).",
			s.details.AmountReceived.StringFixed(models.CurrencyPrecision(s.customer.Currency)),
			s.engine.Total().StringFixed(models.CurrencyPrecision(s.customer.Currency)))
	}
	return ""
}

func (s *PaymentSession) paymentRequestLocked() ledger.PaymentReceivedRequest {
	payable := s.engine.Payable()
	return ledger.PaymentRequestFromRecord(models.PaymentRecord{
		PaymentDetails: s.details,
		TotalAmount: lo.Reduce(payable, func(sum decimal.Decimal, a models.PaymentAllocation, _ int) decimal.Decimal {
			return sum.Add(a.Payment)
		}, decimal.Zero),
		Allocations:      payable,
		CustomerSnapshot: s.customer,
	})
}
