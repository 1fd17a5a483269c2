package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/models"
)

// Worksheet keeps the computed lines of a document being edited. A single-line edit
// recomputes only that line; totals are re-aggregated over all lines. Failed edits leave
// the worksheet unchanged. Not safe for concurrent use.
type Worksheet struct {
	calc       LineItemCalculator
	split      SplitPolicy
	items      []models.LineItem
	results    []models.LineResult
	shipping   decimal.Decimal
	adjustment decimal.Decimal
}

// NewWorksheet creates an empty worksheet.
func NewWorksheet(calc LineItemCalculator, split SplitPolicy) *Worksheet {
	if split == nil {
		split = NoTax()
	}
	return &Worksheet{calc: calc, split: split}
}

func (w *Worksheet) Currency() string   { return w.calc.Currency() }
func (w *Worksheet) Split() SplitPolicy { return w.split }
func (w *Worksheet) Len() int           { return len(w.items) }

// Load replaces every line. Nothing changes if any line is invalid.
func (w *Worksheet) Load(items []models.LineItem) error {
	results, err := w.computeAll(w.calc, w.split, items)
	if err != nil {
		return err
	}
	w.items = append([]models.LineItem(nil), items...)
	w.results = results
	return nil
}

// Rebase switches currency rounding and split policy, e.g. after the customer changes,
// and recomputes every line.
func (w *Worksheet) Rebase(calc LineItemCalculator, split SplitPolicy) error {
	if split == nil {
		split = NoTax()
	}
	results, err := w.computeAll(calc, split, w.items)
	if err != nil {
		return err
	}
	w.calc = calc
	w.split = split
	w.results = results
	return nil
}

// SetLine replaces the line at index.
func (w *Worksheet) SetLine(index int, item models.LineItem) error {
	if err := w.checkIndex("SetLine", index); err != nil {
		return err
	}
	result, err := w.calc.ComputeLine(item, effectiveRate(item, w.split))
	if err != nil {
		return withLineIndex(err, index)
	}
	w.items[index] = item
	w.results[index] = result
	return nil
}

// AppendLine adds a line at the end and returns its index.
func (w *Worksheet) AppendLine(item models.LineItem) (int, error) {
	result, err := w.calc.ComputeLine(item, effectiveRate(item, w.split))
	if err != nil {
		return -1, withLineIndex(err, len(w.items))
	}
	w.items = append(w.items, item)
	w.results = append(w.results, result)
	return len(w.items) - 1, nil
}

// RemoveLine deletes the line at index.
func (w *Worksheet) RemoveLine(index int) error {
	if err := w.checkIndex("RemoveLine", index); err != nil {
		return err
	}
	w.items = append(w.items[:index], w.items[index+1:]...)
	w.results = append(w.results[:index], w.results[index+1:]...)
	return nil
}

// SetCharges sets shipping charges and the free-form adjustment. Adjustment may be negative.
func (w *Worksheet) SetCharges(shipping, adjustment decimal.Decimal) error {
	if shipping.IsNegative() {
		return apperrors.Invariantf("SetCharges", "Shipping charges cannot be negative (%s).", shipping)
	}
	w.shipping = shipping
	w.adjustment = adjustment
	return nil
}

// Items returns a copy of the raw line items.
func (w *Worksheet) Items() []models.LineItem {
	return append([]models.LineItem(nil), w.items...)
}

// Lines returns a copy of the computed lines.
func (w *Worksheet) Lines() []models.ComputedLine {
	lines := make([]models.ComputedLine, len(w.items))
	for i := range w.items {
		lines[i] = models.ComputedLine{LineItem: w.items[i], LineResult: w.results[i]}
	}
	return lines
}

// Totals aggregates the current lines and charges.
func (w *Worksheet) Totals() (models.DocumentTotals, error) {
	return w.calc.Aggregate(w.results, w.shipping, w.adjustment, w.split)
}

func (w *Worksheet) computeAll(calc LineItemCalculator, split SplitPolicy, items []models.LineItem) ([]models.LineResult, error) {
	results := make([]models.LineResult, len(items))
	for i, item := range items {
		r, err := calc.ComputeLine(item, effectiveRate(item, split))
		if err != nil {
			return nil, withLineIndex(err, i)
		}
		results[i] = r
	}
	return results, nil
}

func (w *Worksheet) checkIndex(op string, index int) error {
	if index < 0 || index >= len(w.items) {
		return apperrors.New(op, apperrors.ErrNotFound, "Line does not exist.")
	}
	return nil
}
