package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/database"
	"github.com/username/ledgerdesk/backend/src/models"
)

const (
	DefaultSessionTTL      = 2 * time.Hour
	SessionCleanupInterval = 10 * time.Minute
)

// Common service errors.
var (
	ErrSessionNotFound      = apperrors.New("Session", apperrors.ErrNotFound, "The session has expired or does not exist.")
	ErrSubmissionInProgress = apperrors.New("Submit", apperrors.ErrConflict, "A submission is already in progress for this session.")
	ErrAlreadySubmitted     = apperrors.New("Submit", apperrors.ErrConflict, "This session has already been submitted.")
	ErrSessionDiscarded     = errors.New("session discarded")
)

// CustomerSnapshotResolver freezes a customer record into a snapshot.
type CustomerSnapshotResolver interface {
	// Resolve returns (nil, nil) for an empty id: no customer selected.
	Resolve(ctx context.Context, customerID string) (*models.CustomerSnapshot, error)
}

// SubmissionJournal records payment submissions so that at most one is in flight per
// session and a completed payload is never sent twice.
type SubmissionJournal interface {
	Begin(ctx context.Context, entry database.JournalEntry) error
	Complete(ctx context.Context, idempotencyKey, remoteID string) error
	Fail(ctx context.Context, idempotencyKey string, cause error) error
}

// TransactionService drives invoice and quote editing sessions.
type TransactionService interface {
	Create(ctx context.Context, req CreateTransactionRequest) (*TransactionView, error)
	View(sessionID string) (*TransactionView, error)
	SelectCustomer(ctx context.Context, sessionID, customerID string) (*TransactionView, error)
	SetLine(sessionID string, index int, item models.LineItem) (*TransactionView, error)
	AppendLine(sessionID string, item models.LineItem) (*TransactionView, error)
	RemoveLine(sessionID string, index int) (*TransactionView, error)
	SetCharges(sessionID string, shipping, adjustment decimal.Decimal) (*TransactionView, error)
	Save(ctx context.Context, sessionID string) (*TransactionView, error)
	Discard(sessionID string) error

	// Compute is the stateless form of the document calculation.
	Compute(req ComputeRequest) (*DocumentView, error)
}

// PaymentService drives payment-recording sessions.
type PaymentService interface {
	Open(ctx context.Context, customerID string) (*PaymentView, error)
	View(sessionID string) (*PaymentView, error)
	Toggle(sessionID, invoiceID string) (*PaymentView, error)
	SetAmount(sessionID, invoiceID string, amount decimal.Decimal) (*PaymentView, error)
	AutoAllocate(sessionID string, amount decimal.Decimal) (*PaymentView, error)
	UpdateDetails(sessionID string, details PaymentDetailsInput) (*PaymentView, error)
	Submit(ctx context.Context, sessionID string) (*SubmissionReceipt, error)
	Discard(sessionID string) error
}
