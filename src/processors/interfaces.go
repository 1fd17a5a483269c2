package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/models"
)

// TaxRegimeClassifier derives the tax regime of a transaction.
type TaxRegimeClassifier interface {
	// Classify is total: it always returns a regime.
	Classify(snapshot *models.CustomerSnapshot, homeState string) models.TaxRegime
}

// LineItemCalculator computes line and document amounts in one currency.
type LineItemCalculator interface {
	Currency() string
	ComputeLine(item models.LineItem, taxRatePercent decimal.Decimal) (models.LineResult, error)
	ComputeDocument(items []models.LineItem, opts DocumentOptions) (models.DocumentTotals, []models.ComputedLine, error)
	Aggregate(results []models.LineResult, shipping, adjustment decimal.Decimal, split SplitPolicy) (models.DocumentTotals, error)
}

// SplitPolicy apportions a document's total tax into named components.
type SplitPolicy interface {
	Name() string
	// ChargesTax is false when lines must carry no tax at all.
	ChargesTax() bool
	// Split returns components that always add up to totalTax.
	Split(totalTax decimal.Decimal, currency string) []models.TaxComponent
}

// DocumentOptions carries the document-level inputs of ComputeDocument.
type DocumentOptions struct {
	ShippingCharges decimal.Decimal
	Adjustment      decimal.Decimal
	Split           SplitPolicy
}
