package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/models"
)

func TestResolve_AppliesDefaults(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-1"] = ledger.CustomerRecord{ID: "C-1", DisplayName: "Walk-in"}
	resolver := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults())

	snap, err := resolver.Resolve(context.Background(), "C-1")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "Walk-in", snap.DisplayName)
	assert.Equal(t, "Walk-in", snap.CustomerName)
	assert.Equal(t, models.GSTConsumer, snap.GSTTreatment)
	assert.Equal(t, models.TaxPreferenceTaxable, snap.TaxPreference)
	assert.Equal(t, "INR", snap.Currency)
	assert.Equal(t, models.DueOnReceipt(), snap.PaymentTerms)
	assert.Empty(t, snap.PlaceOfSupply)
}

func TestResolve_CustomDefaults(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-1"] = ledger.CustomerRecord{ID: "C-1", DisplayName: "Walk-in"}
	resolver := NewCustomerSnapshotResolver(fake, SnapshotDefaults{
		Currency:     "USD",
		PaymentTerms: models.PaymentTerms{Name: "Net 15", Days: 15},
	})

	snap, err := resolver.Resolve(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Currency)
	assert.Equal(t, 15, snap.PaymentTerms.Days)
}

func TestResolve_DerivesFromGSTIN(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-1"] = ledger.CustomerRecord{
		ID:           "C-1",
		CustomerName: "Acme Traders Pvt Ltd",
		GSTIN:        "27aapfu0939f1zv",
		PaymentTerms: json.RawMessage(`"Net 45"`),
		BillingAddress: &ledger.AddressRecord{
			City: "Bengaluru", State: "Karnataka",
		},
	}
	resolver := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults())

	snap, err := resolver.Resolve(context.Background(), "C-1")
	require.NoError(t, err)

	assert.Equal(t, "27AAPFU0939F1ZV", snap.GSTIN)
	assert.Equal(t, "AAPFU0939F", snap.PAN)
	assert.Equal(t, models.GSTRegisteredRegular, snap.GSTTreatment)
	assert.Equal(t, "MH", snap.PlaceOfSupply, "GSTIN state wins over the billing address")
	assert.Equal(t, "Acme Traders Pvt Ltd", snap.DisplayName)
	assert.Equal(t, models.PaymentTerms{Name: "Net 45", Days: 45}, snap.PaymentTerms)
	assert.Equal(t, "KA", snap.BillingAddress.StateCode)
}

func TestResolve_PlaceOfSupply(t *testing.T) {
	testCases := []struct {
		name     string
		record   ledger.CustomerRecord
		expected string
	}{
		{
			name:     "explicit numeric code",
			record:   ledger.CustomerRecord{ID: "C-1", DisplayName: "A", PlaceOfSupply: "29", GSTIN: "27AAPFU0939F1ZV"},
			expected: "KA",
		},
		{
			name:     "billing state name",
			record:   ledger.CustomerRecord{ID: "C-1", DisplayName: "A", BillingAddress: &ledger.AddressRecord{State: "Tamil Nadu"}},
			expected: "TN",
		},
		{
			name:     "billing state code field",
			record:   ledger.CustomerRecord{ID: "C-1", DisplayName: "A", BillingAddress: &ledger.AddressRecord{State: "Somewhere", StateCode: "32"}},
			expected: "KL",
		},
		{
			name:     "shipping address is not used",
			record:   ledger.CustomerRecord{ID: "C-1", DisplayName: "A", ShippingAddress: &ledger.AddressRecord{State: "Goa"}},
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeLedger()
			fake.customers["C-1"] = tc.record
			snap, err := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults()).Resolve(context.Background(), "C-1")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, snap.PlaceOfSupply)
		})
	}
}

func TestResolve_ExemptionReasonOnlyWhenExempt(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-EX"] = ledger.CustomerRecord{ID: "C-EX", DisplayName: "Trust", TaxPreference: "tax_exempt", ExemptionReason: "Charity"}
	fake.customers["C-TX"] = ledger.CustomerRecord{ID: "C-TX", DisplayName: "Shop", TaxPreference: "taxable", ExemptionReason: "Stale"}
	resolver := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults())

	exempt, err := resolver.Resolve(context.Background(), "C-EX")
	require.NoError(t, err)
	assert.True(t, exempt.IsTaxExempt())
	assert.Equal(t, "Charity", exempt.ExemptionReason)

	taxable, err := resolver.Resolve(context.Background(), "C-TX")
	require.NoError(t, err)
	assert.Empty(t, taxable.ExemptionReason)
}

func TestResolve_SanitizesNames(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-1"] = ledger.CustomerRecord{ID: "C-1", DisplayName: "<b>Acme</b> & Co", BillingAddress: &ledger.AddressRecord{Street1: "<i>1 Main St</i>"}}

	snap, err := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults()).Resolve(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme & Co", snap.DisplayName)
	assert.Equal(t, "1 Main St", snap.BillingAddress.Street1)
}

func TestResolve_EmptyIDAndErrors(t *testing.T) {
	fake := newFakeLedger()
	resolver := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults())

	snap, err := resolver.Resolve(context.Background(), "  ")
	assert.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 0, fake.customerCalls)

	_, err = resolver.Resolve(context.Background(), "C-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResolve_ReadsLedgerEveryTime(t *testing.T) {
	fake := newFakeLedger()
	fake.customers["C-1"] = ledger.CustomerRecord{ID: "C-1", DisplayName: "Before"}
	resolver := NewCustomerSnapshotResolver(fake, DefaultSnapshotDefaults())

	first, err := resolver.Resolve(context.Background(), "C-1")
	require.NoError(t, err)

	fake.customers["C-1"] = ledger.CustomerRecord{ID: "C-1", DisplayName: "After"}
	second, err := resolver.Resolve(context.Background(), "C-1")
	require.NoError(t, err)

	assert.Equal(t, "Before", first.DisplayName, "a taken snapshot does not change")
	assert.Equal(t, "After", second.DisplayName)
	assert.Equal(t, 2, fake.customerCalls)
}

func TestNormalizeSnapshot(t *testing.T) {
	valid := func() models.CustomerSnapshot {
		return models.CustomerSnapshot{CustomerID: "C-1", DisplayName: "Acme", PlaceOfSupply: "karnataka"}
	}

	t.Run("valid", func(t *testing.T) {
		s := valid()
		s.GSTIN = "29aaaci1681g1zk"
		s.PaymentTerms = models.PaymentTerms{Days: 30}
		got, err := NormalizeSnapshot(s)
		require.NoError(t, err)
		assert.Equal(t, "KA", got.PlaceOfSupply)
		assert.Equal(t, "29AAACI1681G1ZK", got.GSTIN)
		assert.Equal(t, "INR", got.Currency)
		assert.Equal(t, models.TaxPreferenceTaxable, got.TaxPreference)
		assert.Equal(t, models.PaymentTerms{Name: "Net 30", Days: 30}, got.PaymentTerms)
	})

	testCases := []struct {
		name   string
		mutate func(*models.CustomerSnapshot)
	}{
		{"missing id", func(s *models.CustomerSnapshot) { s.CustomerID = "" }},
		{"missing name", func(s *models.CustomerSnapshot) { s.DisplayName = "" }},
		{"unknown treatment", func(s *models.CustomerSnapshot) { s.GSTTreatment = "martian" }},
		{"unknown preference", func(s *models.CustomerSnapshot) { s.TaxPreference = "sometimes" }},
		{"bad gstin", func(s *models.CustomerSnapshot) { s.GSTIN = "29ABC" }},
		{"bad currency", func(s *models.CustomerSnapshot) { s.Currency = "RUPEE" }},
		{"unknown state", func(s *models.CustomerSnapshot) { s.PlaceOfSupply = "Atlantis" }},
		{"negative terms", func(s *models.CustomerSnapshot) { s.PaymentTerms = models.PaymentTerms{Name: "Odd", Days: -1} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			_, err := NormalizeSnapshot(s)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}
