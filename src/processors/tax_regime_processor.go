package processors

import (
	"fmt"
	"strings"

	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/utils"
)

// MissingPlaceOfSupplyPolicy decides the regime of a taxable customer without a place of supply.
type MissingPlaceOfSupplyPolicy int

const (
	// MissingPlaceOfSupplyIsIntraState treats a missing place of supply as the home
	// state. Pending product sign-off.
	MissingPlaceOfSupplyIsIntraState MissingPlaceOfSupplyPolicy = iota
	// MissingPlaceOfSupplyIsInterState charges IGST instead.
	MissingPlaceOfSupplyIsInterState
)

func (p MissingPlaceOfSupplyPolicy) String() string {
	if p == MissingPlaceOfSupplyIsInterState {
		return "inter_state"
	}
	return "intra_state"
}

// ParseMissingPlaceOfSupplyPolicy reads "intra_state" or "inter_state".
func ParseMissingPlaceOfSupplyPolicy(raw string) (MissingPlaceOfSupplyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "intra_state":
		return MissingPlaceOfSupplyIsIntraState, nil
	case "inter_state":
		return MissingPlaceOfSupplyIsInterState, nil
	}
	return MissingPlaceOfSupplyIsIntraState, fmt.Errorf("unknown missing place of supply policy %q", raw)
}

type taxRegimeClassifierImpl struct {
	missingPlaceOfSupply MissingPlaceOfSupplyPolicy
}

// NewTaxRegimeClassifier creates a classifier with the given missing-place-of-supply policy.
func NewTaxRegimeClassifier(policy MissingPlaceOfSupplyPolicy) TaxRegimeClassifier {
	return &taxRegimeClassifierImpl{missingPlaceOfSupply: policy}
}

// Classify applies, in order: tax exemption, missing place of supply, state comparison.
// State codes are compared after normalization, so "27", "mh" and "Maharashtra" match.
// A nil snapshot is classified like a customer without a place of supply.
func (c *taxRegimeClassifierImpl) Classify(snapshot *models.CustomerSnapshot, homeState string) models.TaxRegime {
	if snapshot != nil && snapshot.IsTaxExempt() {
		return models.RegimeExempt
	}

	placeOfSupply := ""
	if snapshot != nil {
		placeOfSupply = utils.NormalizeStateCode(snapshot.PlaceOfSupply)
	}
	if placeOfSupply == "" {
		if c.missingPlaceOfSupply == MissingPlaceOfSupplyIsInterState {
			return models.RegimeInterState
		}
		return models.RegimeIntraState
	}

	if placeOfSupply == utils.NormalizeStateCode(homeState) {
		return models.RegimeIntraState
	}
	return models.RegimeInterState
}

// SplitForRegime returns the split policy that matches a regime.
func SplitForRegime(regime models.TaxRegime) SplitPolicy {
	switch regime {
	case models.RegimeExempt:
		return NoTax()
	case models.RegimeInterState:
		return SingleComponent(models.ComponentIGST)
	default:
		return EvenSplit(models.ComponentCGST, models.ComponentSGST)
	}
}
