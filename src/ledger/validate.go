package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/security/validation"
)

// Validate checks a customer record against the contract. Unknown enum values and
// badly formed tax identifiers are errors, never silently defaulted.
func (r *CustomerRecord) Validate() error {
	var errs []error

	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("customer id is missing"))
	}
	if strings.TrimSpace(r.DisplayName) == "" && strings.TrimSpace(r.CustomerName) == "" && strings.TrimSpace(r.CompanyName) == "" {
		errs = append(errs, errors.New("customer has no name"))
	}
	if t := r.GSTTreatment; t != "" && !models.GSTTreatment(t).Valid() {
		errs = append(errs, fmt.Errorf("unknown gstTreatment %q", t))
	}
	if p := r.TaxPreference; p != "" && !models.TaxPreference(p).Valid() {
		errs = append(errs, fmt.Errorf("unknown taxPreference %q", p))
	}
	if err := validation.ValidateGSTIN(r.GSTIN); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidatePAN(r.PAN); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidateCurrencyCode(r.Currency); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidateStateCode(r.PlaceOfSupply, "placeOfSupply"); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.Terms(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Terms decodes the payment terms. A missing value yields the default terms.
func (r *CustomerRecord) Terms() (models.PaymentTerms, error) {
	raw := bytes.TrimSpace(r.PaymentTerms)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return models.DueOnReceipt(), nil
	}

	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return models.PaymentTerms{}, fmt.Errorf("paymentTerms: %w", err)
		}
		return models.ParsePaymentTerms(name)
	case '{':
		var terms struct {
			Name string `json:"name"`
			Days *int   `json:"days"`
		}
		if err := json.Unmarshal(raw, &terms); err != nil {
			return models.PaymentTerms{}, fmt.Errorf("paymentTerms: %w", err)
		}
		if terms.Days == nil {
			return models.ParsePaymentTerms(terms.Name)
		}
		if *terms.Days < 0 {
			return models.PaymentTerms{}, fmt.Errorf("paymentTerms: negative days %d", *terms.Days)
		}
		if strings.TrimSpace(terms.Name) == "" {
			return models.PaymentTermsFromDays(*terms.Days)
		}
		return models.PaymentTerms{Name: strings.TrimSpace(terms.Name), Days: *terms.Days}, nil
	default:
		days, err := decimal.NewFromString(string(raw))
		if err != nil || !days.IsInteger() {
			return models.PaymentTerms{}, fmt.Errorf("paymentTerms: %s is not a day count", raw)
		}
		return models.PaymentTermsFromDays(int(days.IntPart()))
	}
}

// ToOpenInvoice validates the record and converts it.
func (r InvoiceRecord) ToOpenInvoice() (models.OpenInvoice, error) {
	var errs []error

	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("invoice id is missing"))
	}
	if strings.TrimSpace(r.InvoiceNumber) == "" {
		errs = append(errs, fmt.Errorf("invoice %s has no number", r.ID))
	}

	date, err := validation.ValidateDateString(r.Date, "date")
	if err != nil {
		errs = append(errs, err)
	}
	var dueDate = date
	if strings.TrimSpace(r.DueDate) != "" {
		if dueDate, err = validation.ValidateDateString(r.DueDate, "dueDate"); err != nil {
			errs = append(errs, err)
		}
	}

	status := models.InvoiceStatus(r.Status)
	if !status.Valid() {
		errs = append(errs, fmt.Errorf("invoice %s has unknown status %q", r.ID, r.Status))
	}

	if !r.Amount.Valid {
		errs = append(errs, fmt.Errorf("invoice %s has no amount", r.ID))
	}
	if !r.BalanceDue.Valid {
		errs = append(errs, fmt.Errorf("invoice %s has no balanceDue", r.ID))
	}
	if r.Amount.Valid && r.BalanceDue.Valid {
		if err := validation.ValidateNonNegativeAmount(r.Amount.Decimal, "amount"); err != nil {
			errs = append(errs, err)
		}
		if err := validation.ValidateNonNegativeAmount(r.BalanceDue.Decimal, "balanceDue"); err != nil {
			errs = append(errs, err)
		}
		if err := validation.ValidateAmountNotAbove(r.BalanceDue.Decimal, r.Amount.Decimal, "balanceDue", "amount"); err != nil {
			errs = append(errs, err)
		}
		if err := validation.ValidateAmountPrecision(r.Amount.Decimal, models.MaxCurrencyPrecision, "amount"); err != nil {
			errs = append(errs, err)
		}
		if err := validation.ValidateAmountPrecision(r.BalanceDue.Decimal, models.MaxCurrencyPrecision, "balanceDue"); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return models.OpenInvoice{}, err
	}

	return models.OpenInvoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		Date:          date,
		DueDate:       dueDate,
		Amount:        r.Amount.Decimal,
		BalanceDue:    r.BalanceDue.Decimal,
		Status:        status,
	}, nil
}
