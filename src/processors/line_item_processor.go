package processors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/models"
)

var hundred = decimal.NewFromInt(100)

// lineItemCalculatorImpl implements the LineItemCalculator interface.
type lineItemCalculatorImpl struct {
	currency string
}

// NewLineItemCalculator creates a calculator rounding to the minor unit of currency.
func NewLineItemCalculator(currency string) LineItemCalculator {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &lineItemCalculatorImpl{currency: currency}
}

func (c *lineItemCalculatorImpl) Currency() string {
	return c.currency
}

// ComputeLine derives taxable amount, tax and total for one line.
// A discount above quantity × rate is rejected, never clamped; see ClampDiscount.
func (c *lineItemCalculatorImpl) ComputeLine(item models.LineItem, taxRatePercent decimal.Decimal) (models.LineResult, error) {
	const op = "ComputeLine"

	switch {
	case item.Quantity.IsNegative():
		return models.LineResult{}, apperrors.Invariantf(op, "Quantity cannot be negative (%s).", item.Quantity)
	case item.Rate.IsNegative():
		return models.LineResult{}, apperrors.Invariantf(op, "Rate cannot be negative (%s).", item.Rate)
	case item.Discount.IsNegative():
		return models.LineResult{}, apperrors.Invariantf(op, "Discount cannot be negative (%s).", item.Discount)
	case taxRatePercent.IsNegative():
		return models.LineResult{}, apperrors.Invariantf(op, "Tax rate cannot be negative (%s).", taxRatePercent)
	}

	gross := item.Gross()
	if item.Discount.GreaterThan(gross) {
		return models.LineResult{}, apperrors.Invariantf(op, "Discount %s exceeds the line amount %s.", item.Discount, gross)
	}

	taxable := models.RoundMoney(gross.Sub(item.Discount), c.currency)
	tax := models.RoundMoney(taxable.Mul(taxRatePercent).Div(hundred), c.currency)

	return models.LineResult{
		TaxableAmount: taxable,
		TaxAmount:     tax,
		Total:         taxable.Add(tax),
	}, nil
}

// ComputeDocument computes every line with its own tax rate and aggregates the totals.
// When the split policy charges no tax, lines are computed at a zero rate.
func (c *lineItemCalculatorImpl) ComputeDocument(items []models.LineItem, opts DocumentOptions) (models.DocumentTotals, []models.ComputedLine, error) {
	split := opts.Split
	if split == nil {
		split = NoTax()
	}

	lines := make([]models.ComputedLine, 0, len(items))
	for i, item := range items {
		result, err := c.ComputeLine(item, effectiveRate(item, split))
		if err != nil {
			return models.DocumentTotals{}, nil, withLineIndex(err, i)
		}
		lines = append(lines, models.ComputedLine{LineItem: item, LineResult: result})
	}

	results := make([]models.LineResult, len(lines))
	for i, l := range lines {
		results[i] = l.LineResult
	}
	totals, err := c.Aggregate(results, opts.ShippingCharges, opts.Adjustment, split)
	if err != nil {
		return models.DocumentTotals{}, nil, err
	}
	return totals, lines, nil
}

// Aggregate sums already computed lines into document totals.
func (c *lineItemCalculatorImpl) Aggregate(results []models.LineResult, shipping, adjustment decimal.Decimal, split SplitPolicy) (models.DocumentTotals, error) {
	if split == nil {
		split = NoTax()
	}
	if shipping.IsNegative() {
		return models.DocumentTotals{}, apperrors.Invariantf("ComputeDocument", "Shipping charges cannot be negative (%s).", shipping)
	}

	subTotal := decimal.Zero
	totalTax := decimal.Zero
	for _, r := range results {
		subTotal = subTotal.Add(r.TaxableAmount)
		totalTax = totalTax.Add(r.TaxAmount)
	}

	shipping = models.RoundMoney(shipping, c.currency)
	adjustment = models.RoundMoney(adjustment, c.currency)

	return models.DocumentTotals{
		SubTotal:        subTotal,
		TotalTax:        totalTax,
		TaxComponents:   split.Split(totalTax, c.currency),
		ShippingCharges: shipping,
		Adjustment:      adjustment,
		GrandTotal:      subTotal.Add(totalTax).Add(shipping).Add(adjustment),
	}, nil
}

func effectiveRate(item models.LineItem, split SplitPolicy) decimal.Decimal {
	if !split.ChargesTax() {
		return decimal.Zero
	}
	return item.TaxRatePercent
}

func withLineIndex(err error, index int) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		copied := *appErr
		copied.Message = fmt.Sprintf("Line %d: %s", index+1, appErr.Message)
		return &copied
	}
	return err
}

// ClampDiscount is the caller-side policy for out-of-range discounts: it bounds the
// discount to [0, quantity × rate]. The calculator itself never clamps.
func ClampDiscount(item models.LineItem) models.LineItem {
	gross := item.Gross()
	if gross.IsNegative() {
		gross = decimal.Zero
	}
	switch {
	case item.Discount.IsNegative():
		item.Discount = decimal.Zero
	case item.Discount.GreaterThan(gross):
		item.Discount = gross
	}
	return item
}

// --- Split policies ---

type evenSplit struct {
	first, second string
}

// EvenSplit divides tax into two halves. The first component takes the half rounded
// away from zero, so an odd minor unit goes to it and the two always add up.
func EvenSplit(first, second string) SplitPolicy {
	return evenSplit{first: first, second: second}
}

func (s evenSplit) Name() string     { return s.first + "+" + s.second }
func (s evenSplit) ChargesTax() bool { return true }

func (s evenSplit) Split(totalTax decimal.Decimal, currency string) []models.TaxComponent {
	half := models.RoundMoney(totalTax.Div(decimal.NewFromInt(2)), currency)
	return []models.TaxComponent{
		{Name: s.first, Amount: half},
		{Name: s.second, Amount: totalTax.Sub(half)},
	}
}

type singleComponent struct {
	name string
}

// SingleComponent assigns the whole tax to one component.
func SingleComponent(name string) SplitPolicy {
	return singleComponent{name: name}
}

func (s singleComponent) Name() string     { return s.name }
func (s singleComponent) ChargesTax() bool { return true }

func (s singleComponent) Split(totalTax decimal.Decimal, _ string) []models.TaxComponent {
	return []models.TaxComponent{{Name: s.name, Amount: totalTax}}
}

type noTax struct{}

// NoTax is the policy for exempt documents: no component, zero tax on every line.
func NoTax() SplitPolicy {
	return noTax{}
}

func (noTax) Name() string     { return "exempt" }
func (noTax) ChargesTax() bool { return false }

func (noTax) Split(decimal.Decimal, string) []models.TaxComponent {
	return []models.TaxComponent{}
}
