package services

import (
	"context"
	"strings"

	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/security/validation"
	"github.com/username/ledgerdesk/backend/src/utils"
)

// SnapshotDefaults are applied to optional customer fields that are missing.
type SnapshotDefaults struct {
	Currency     string
	PaymentTerms models.PaymentTerms
}

// DefaultSnapshotDefaults returns INR and "Due on Receipt".
func DefaultSnapshotDefaults() SnapshotDefaults {
	return SnapshotDefaults{Currency: models.DefaultCurrency, PaymentTerms: models.DueOnReceipt()}
}

type snapshotResolverImpl struct {
	client   ledger.Client
	defaults SnapshotDefaults
}

// NewCustomerSnapshotResolver creates a resolver reading customers through client.
// Customer records are never cached: every call reads the ledger again.
func NewCustomerSnapshotResolver(client ledger.Client, defaults SnapshotDefaults) CustomerSnapshotResolver {
	if strings.TrimSpace(defaults.Currency) == "" {
		defaults.Currency = models.DefaultCurrency
	}
	if strings.TrimSpace(defaults.PaymentTerms.Name) == "" {
		defaults.PaymentTerms = models.DueOnReceipt()
	}
	return &snapshotResolverImpl{client: client, defaults: defaults}
}

func (r *snapshotResolverImpl) Resolve(ctx context.Context, customerID string) (*models.CustomerSnapshot, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}

	record, err := r.client.GetCustomer(ctx, customerID)
	if err != nil {
		logger.FromContext(ctx).Info("Customer resolution failed", "customerID", customerID, "error", err)
		return nil, err
	}

	snapshot := r.freeze(record)
	logger.FromContext(ctx).Debug("Customer snapshot captured", "customerID", customerID,
		"placeOfSupply", snapshot.PlaceOfSupply, "taxPreference", snapshot.TaxPreference)
	return &snapshot, nil
}

// freeze copies a validated record into a snapshot, applying defaults.
func (r *snapshotResolverImpl) freeze(rec *ledger.CustomerRecord) models.CustomerSnapshot {
	customerName := validation.CleanText(rec.CustomerName)
	if customerName == "" {
		customerName = validation.CleanText(rec.CompanyName)
	}
	displayName := validation.CleanText(rec.DisplayName)
	if displayName == "" {
		displayName = customerName
	}
	if customerName == "" {
		customerName = displayName
	}

	gstin := strings.ToUpper(strings.TrimSpace(rec.GSTIN))
	pan := strings.ToUpper(strings.TrimSpace(rec.PAN))
	if pan == "" && len(gstin) == 15 {
		pan = gstin[2:12]
	}

	treatment := models.GSTTreatment(rec.GSTTreatment)
	if treatment == "" {
		treatment = models.GSTConsumer
		if gstin != "" {
			treatment = models.GSTRegisteredRegular
		}
	}

	preference := models.TaxPreference(rec.TaxPreference)
	if preference == "" {
		preference = models.TaxPreferenceTaxable
	}
	exemptionReason := ""
	if preference == models.TaxPreferenceExempt {
		exemptionReason = validation.CleanText(rec.ExemptionReason)
	}

	billing := freezeAddress(rec.BillingAddress)
	shipping := freezeAddress(rec.ShippingAddress)

	placeOfSupply := utils.NormalizeStateCode(rec.PlaceOfSupply)
	if placeOfSupply == "" {
		placeOfSupply = utils.StateCodeFromGSTIN(gstin)
	}
	if placeOfSupply == "" {
		placeOfSupply = billing.StateCode
	}

	currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
	if currency == "" {
		currency = r.defaults.Currency
	}

	terms := r.defaults.PaymentTerms
	if len(rec.PaymentTerms) > 0 {
		// Already checked by the ledger client.
		if parsed, err := rec.Terms(); err == nil {
			terms = parsed
		}
	}

	return models.CustomerSnapshot{
		CustomerID:      rec.ID,
		DisplayName:     displayName,
		CustomerName:    customerName,
		BillingAddress:  billing,
		ShippingAddress: shipping,
		GSTTreatment:    treatment,
		TaxPreference:   preference,
		ExemptionReason: exemptionReason,
		GSTIN:           gstin,
		PAN:             pan,
		PlaceOfSupply:   placeOfSupply,
		Currency:        currency,
		PaymentTerms:    terms,
	}
}

func freezeAddress(rec *ledger.AddressRecord) models.Address {
	if rec == nil {
		return models.Address{}
	}
	addr := models.Address{
		Attention: validation.CleanText(rec.Attention),
		Street1:   validation.CleanText(rec.Street1),
		Street2:   validation.CleanText(rec.Street2),
		City:      validation.CleanText(rec.City),
		State:     validation.CleanText(rec.State),
		Zip:       validation.CleanText(rec.Zip),
		Country:   validation.CleanText(rec.Country),
		Phone:     validation.CleanText(rec.Phone),
	}
	switch {
	case strings.TrimSpace(rec.StateCode) != "":
		addr.StateCode = utils.NormalizeStateCode(rec.StateCode)
	case utils.IsKnownState(addr.State):
		addr.StateCode = utils.NormalizeStateCode(addr.State)
	}
	return addr
}

// NormalizeSnapshot checks a snapshot supplied by the caller, e.g. one persisted on an
// invoice being edited, and brings its codes into canonical form.
func NormalizeSnapshot(s models.CustomerSnapshot) (models.CustomerSnapshot, error) {
	const op = "NormalizeSnapshot"

	s.CustomerID = strings.TrimSpace(s.CustomerID)
	if s.CustomerID == "" {
		return s, apperrors.Validationf(op, "Customer snapshot has no customer id.")
	}
	s.DisplayName = validation.CleanText(s.DisplayName)
	s.CustomerName = validation.CleanText(s.CustomerName)
	if s.Name() == "" {
		return s, apperrors.Validationf(op, "Customer snapshot has no name.")
	}
	if s.GSTTreatment != "" && !s.GSTTreatment.Valid() {
		return s, apperrors.Validationf(op, "Unknown GST treatment %q.", s.GSTTreatment)
	}
	if s.TaxPreference == "" {
		s.TaxPreference = models.TaxPreferenceTaxable
	}
	if !s.TaxPreference.Valid() {
		return s, apperrors.Validationf(op, "Unknown tax preference %q.", s.TaxPreference)
	}

	s.GSTIN = strings.ToUpper(strings.TrimSpace(s.GSTIN))
	s.PAN = strings.ToUpper(strings.TrimSpace(s.PAN))
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	for _, check := range []error{
		validation.ValidateGSTIN(s.GSTIN),
		validation.ValidatePAN(s.PAN),
		validation.ValidateCurrencyCode(s.Currency),
		validation.ValidateStateCode(s.PlaceOfSupply, "Place of supply"),
	} {
		if check != nil {
			return s, fieldError(op, check)
		}
	}

	s.PlaceOfSupply = utils.NormalizeStateCode(s.PlaceOfSupply)
	if s.Currency == "" {
		s.Currency = models.DefaultCurrency
	}
	if strings.TrimSpace(s.PaymentTerms.Name) == "" {
		terms, err := models.PaymentTermsFromDays(s.PaymentTerms.Days)
		if err != nil {
			return s, apperrors.Validationf(op, "Payment terms cannot be negative.")
		}
		s.PaymentTerms = terms
	}
	if s.PaymentTerms.Days < 0 {
		return s, apperrors.Validationf(op, "Payment terms cannot be negative.")
	}
	return s, nil
}
