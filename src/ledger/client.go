// Package ledger is the client of the external persistence service. It owns the wire
// records and rejects responses that do not match the contract.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
)

const maxResponseBytes = 4 << 20

// Client reads customers and invoices and writes payments and invoice edits.
type Client interface {
	GetCustomer(ctx context.Context, customerID string) (*CustomerRecord, error)
	ListOpenInvoices(ctx context.Context, customerID string) ([]models.OpenInvoice, error)
	RecordPayment(ctx context.Context, req PaymentReceivedRequest, idempotencyKey string) (*PaymentReceivedResult, error)
	UpdateInvoice(ctx context.Context, invoiceID string, req InvoiceUpdateRequest) error
}

type httpLedgerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a ledger client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpLedgerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *httpLedgerClient) GetCustomer(ctx context.Context, customerID string) (*CustomerRecord, error) {
	const op = "GetCustomer"

	var record CustomerRecord
	if err := c.do(ctx, op, http.MethodGet, "/customers/"+url.PathEscape(customerID), nil, nil, &record); err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		logger.FromContext(ctx).Warn("Rejected malformed customer record", "customerID", customerID, "error", err)
		return nil, apperrors.Wrap(op, apperrors.ErrMalformedResponse, err, "")
	}
	if record.ID != customerID {
		return nil, apperrors.Wrap(op, apperrors.ErrMalformedResponse,
			fmt.Errorf("requested customer %s, received %s", customerID, record.ID), "")
	}
	return &record, nil
}

// ListOpenInvoices fetches the customer's invoices and keeps those that can take a
// payment: positive balance due and status pending, overdue or partially paid.
func (c *httpLedgerClient) ListOpenInvoices(ctx context.Context, customerID string) ([]models.OpenInvoice, error) {
	const op = "ListOpenInvoices"

	var records []InvoiceRecord
	path := "/invoices?customerId=" + url.QueryEscape(customerID)
	if err := c.do(ctx, op, http.MethodGet, path, nil, nil, &records); err != nil {
		return nil, err
	}

	open := make([]models.OpenInvoice, 0, len(records))
	for _, rec := range records {
		inv, err := rec.ToOpenInvoice()
		if err != nil {
			logger.FromContext(ctx).Warn("Rejected malformed invoice list", "customerID", customerID, "invoiceID", rec.ID, "error", err)
			return nil, apperrors.Wrap(op, apperrors.ErrMalformedResponse, err, "")
		}
		if inv.Eligible() {
			open = append(open, inv)
		}
	}
	return open, nil
}

func (c *httpLedgerClient) RecordPayment(ctx context.Context, req PaymentReceivedRequest, idempotencyKey string) (*PaymentReceivedResult, error) {
	const op = "RecordPayment"

	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var result PaymentReceivedResult
	if err := c.do(ctx, op, http.MethodPost, "/payments-received", req, headers, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.ID) == "" {
		return nil, apperrors.Wrap(op, apperrors.ErrMalformedResponse, errors.New("payment id missing from response"), "")
	}
	return &result, nil
}

func (c *httpLedgerClient) UpdateInvoice(ctx context.Context, invoiceID string, req InvoiceUpdateRequest) error {
	return c.do(ctx, "UpdateInvoice", http.MethodPut, "/invoices/"+url.PathEscape(invoiceID), req, nil, nil)
}

// do performs one request and decodes the envelope's data into out (when non-nil).
func (c *httpLedgerClient) do(ctx context.Context, op, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.Wrap(op, apperrors.ErrTransient, err, "")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := ""
		if decodeErr == nil {
			message = env.errorText()
		}
		logger.FromContext(ctx).Warn("Ledger API returned an error status", "op", op, "status", resp.StatusCode, "message", message)
		return statusError(op, method, resp.StatusCode, message)
	}

	if decodeErr != nil {
		return apperrors.Wrap(op, apperrors.ErrMalformedResponse, decodeErr, "")
	}
	if !env.Success {
		if method == http.MethodGet {
			return apperrors.New(op, apperrors.ErrNotFound, env.errorText())
		}
		return apperrors.New(op, apperrors.ErrValidation, rejectionMessage(env.errorText()))
	}
	if out == nil {
		return nil
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return apperrors.Wrap(op, apperrors.ErrMalformedResponse, errors.New("response has no data"), "")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(op, apperrors.ErrMalformedResponse, err, "")
	}
	return nil
}

func statusError(op, method string, status int, message string) error {
	cause := fmt.Errorf("ledger API returned %d", status)
	switch {
	case status == http.StatusNotFound:
		return apperrors.Wrap(op, apperrors.ErrNotFound, cause, message)
	case status == http.StatusConflict:
		return apperrors.Wrap(op, apperrors.ErrConflict, cause, message)
	case method != http.MethodGet && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity):
		return apperrors.Wrap(op, apperrors.ErrValidation, cause, rejectionMessage(message))
	default:
		return apperrors.Wrap(op, apperrors.ErrTransient, cause, "")
	}
}

func rejectionMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return "The ledger rejected the request."
	}
	return message
}
