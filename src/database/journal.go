package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/logger"
	"golang.org/x/crypto/blake2b"
)

// Submission statuses stored in payment_submissions.status.
const (
	SubmissionInFlight  = "in_flight"
	SubmissionCompleted = "completed"
	SubmissionFailed    = "failed"
)

// JournalEntry describes a payment submission about to be sent to the ledger.
type JournalEntry struct {
	IdempotencyKey string
	SessionID      string
	CustomerID     string
	Amount         decimal.Decimal
	Fingerprint    string
}

// JournalRecord is a stored submission.
type JournalRecord struct {
	JournalEntry
	Status    string
	RemoteID  string
	Error     string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Journal records payment submissions so that a payment is sent at most once per
// idempotency key and at most one submission per session is in flight.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// NewJournal creates a journal over an already migrated database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Begin marks entry as in flight. A completed key or another in-flight submission for
// the same session is a conflict. A failed key may be retried.
func (j *Journal) Begin(ctx context.Context, entry JournalEntry) (err error) {
	const op = "Journal.Begin"
	log := logger.FromContext(ctx)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error("Failed to roll back journal transaction", "error", rbErr)
			}
		}
	}()

	var inFlight int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_submissions WHERE session_id = ? AND status = ? AND idempotency_key <> ?`,
		entry.SessionID, SubmissionInFlight, entry.IdempotencyKey).Scan(&inFlight)
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	if inFlight > 0 {
		err = apperrors.New(op, apperrors.ErrConflict, "A payment for this session is already being submitted.")
		return err
	}

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM payment_submissions WHERE idempotency_key = ?`, entry.IdempotencyKey).Scan(&status)
	now := j.now().UTC().Format(time.RFC3339Nano)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_submissions
			 (idempotency_key, session_id, customer_id, amount, fingerprint, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.IdempotencyKey, entry.SessionID, entry.CustomerID, entry.Amount.String(),
			entry.Fingerprint, SubmissionInFlight, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				err = apperrors.New(op, apperrors.ErrConflict, "A payment for this session is already being submitted.")
				return err
			}
			return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
		}
	case err != nil:
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	case status == SubmissionCompleted:
		err = apperrors.New(op, apperrors.ErrConflict, "This payment has already been recorded.")
		return err
	case status == SubmissionInFlight:
		err = apperrors.New(op, apperrors.ErrConflict, "A payment for this session is already being submitted.")
		return err
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE payment_submissions
			 SET status = ?, error = NULL, attempts = attempts + 1, updated_at = ?
			 WHERE idempotency_key = ?`,
			SubmissionInFlight, now, entry.IdempotencyKey)
		if err != nil {
			return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	log.Info("Payment submission started", "idempotencyKey", entry.IdempotencyKey, "customerID", entry.CustomerID, "amount", entry.Amount.String())
	return nil
}

// Complete marks an in-flight submission as recorded by the ledger.
func (j *Journal) Complete(ctx context.Context, idempotencyKey, remoteID string) error {
	return j.finish(ctx, "Journal.Complete", idempotencyKey, SubmissionCompleted, remoteID, "")
}

// Fail marks an in-flight submission as failed so it can be retried.
func (j *Journal) Fail(ctx context.Context, idempotencyKey string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return j.finish(ctx, "Journal.Fail", idempotencyKey, SubmissionFailed, "", msg)
}

func (j *Journal) finish(ctx context.Context, op, key, status, remoteID, errText string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE payment_submissions
		 SET status = ?, remote_id = NULLIF(?, ''), error = NULLIF(?, ''), updated_at = ?
		 WHERE idempotency_key = ? AND status = ?`,
		status, remoteID, errText, j.now().UTC().Format(time.RFC3339Nano), key, SubmissionInFlight)
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	if n == 0 {
		return apperrors.New(op, apperrors.ErrNotFound, fmt.Sprintf("No in-flight submission for key %s.", key))
	}
	logger.FromContext(ctx).Info("Payment submission finished", "idempotencyKey", key, "status", status, "remoteID", remoteID)
	return nil
}

// Get returns the stored submission for idempotencyKey.
func (j *Journal) Get(ctx context.Context, idempotencyKey string) (*JournalRecord, error) {
	var (
		rec                  JournalRecord
		amount               string
		remoteID, errText    sql.NullString
		createdAt, updatedAt string
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT idempotency_key, session_id, customer_id, amount, fingerprint, status, remote_id, error, attempts, created_at, updated_at
		 FROM payment_submissions WHERE idempotency_key = ?`, idempotencyKey).
		Scan(&rec.IdempotencyKey, &rec.SessionID, &rec.CustomerID, &amount, &rec.Fingerprint,
			&rec.Status, &remoteID, &errText, &rec.Attempts, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New("Journal.Get", apperrors.ErrNotFound, "Submission not found.")
	}
	if err != nil {
		return nil, apperrors.Wrap("Journal.Get", apperrors.ErrTransient, err, "")
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	rec.RemoteID = remoteID.String
	rec.Error = errText.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// Fingerprint returns a hex BLAKE2b-256 digest of the JSON encoding of v.
func Fingerprint(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint payload: %w", err)
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
