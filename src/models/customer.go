package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// GSTTreatment classifies a customer's registration under GST.
type GSTTreatment string

const (
	GSTRegisteredRegular     GSTTreatment = "registered-regular"
	GSTRegisteredComposition GSTTreatment = "registered-composition"
	GSTUnregistered          GSTTreatment = "unregistered"
	GSTConsumer              GSTTreatment = "consumer"
	GSTOverseas              GSTTreatment = "overseas"
	GSTSEZ                   GSTTreatment = "sez"
	GSTDeemedExport          GSTTreatment = "deemed-export"
)

// Valid reports whether t is a known treatment.
func (t GSTTreatment) Valid() bool {
	switch t {
	case GSTRegisteredRegular, GSTRegisteredComposition, GSTUnregistered,
		GSTConsumer, GSTOverseas, GSTSEZ, GSTDeemedExport:
		return true
	}
	return false
}

// RequiresGSTIN reports whether a customer with this treatment must carry a GSTIN.
func (t GSTTreatment) RequiresGSTIN() bool {
	return t == GSTRegisteredRegular || t == GSTRegisteredComposition || t == GSTSEZ || t == GSTDeemedExport
}

// TaxPreference is either taxable or tax_exempt.
type TaxPreference string

const (
	TaxPreferenceTaxable TaxPreference = "taxable"
	TaxPreferenceExempt  TaxPreference = "tax_exempt"
)

func (p TaxPreference) Valid() bool {
	return p == TaxPreferenceTaxable || p == TaxPreferenceExempt
}

// Address is a structured postal address.
type Address struct {
	Attention string `json:"attention,omitempty"`
	Street1   string `json:"street1,omitempty"`
	Street2   string `json:"street2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	StateCode string `json:"stateCode,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsEmpty reports whether no postal field is set.
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Lines renders the address as display lines, skipping empty parts.
func (a Address) Lines() []string {
	var lines []string
	for _, s := range []string{a.Attention, a.Street1, a.Street2} {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}

	cityLine := strings.TrimSpace(a.City)
	if st := strings.TrimSpace(a.State); st != "" {
		if cityLine != "" {
			cityLine += ", "
		}
		cityLine += st
	}
	if zip := strings.TrimSpace(a.Zip); zip != "" {
		if cityLine != "" {
			cityLine += " "
		}
		cityLine += zip
	}
	if cityLine != "" {
		lines = append(lines, cityLine)
	}
	if c := strings.TrimSpace(a.Country); c != "" {
		lines = append(lines, c)
	}
	if p := strings.TrimSpace(a.Phone); p != "" {
		lines = append(lines, "Phone: "+p)
	}
	return lines
}

// DefaultPaymentTermsName is applied when a customer record carries no payment terms.
const DefaultPaymentTermsName = "Due on Receipt"

// PaymentTerms is a named term with the number of days until payment is due.
type PaymentTerms struct {
	Name string `json:"name"`
	Days int    `json:"days"`
}

var netTermsPattern = regexp.MustCompile(`(?i)^net\s*(\d{1,3})$`)

// DueOnReceipt returns the default payment terms.
func DueOnReceipt() PaymentTerms {
	return PaymentTerms{Name: DefaultPaymentTermsName, Days: 0}
}

// ParsePaymentTerms interprets a named term ("Net 30", "Due on Receipt") or a
// bare day count ("45"). Blank input yields the default terms.
func ParsePaymentTerms(raw string) (PaymentTerms, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DueOnReceipt(), nil
	}
	if strings.EqualFold(s, DefaultPaymentTermsName) {
		return DueOnReceipt(), nil
	}
	if m := netTermsPattern.FindStringSubmatch(s); m != nil {
		days, _ := strconv.Atoi(m[1])
		return PaymentTerms{Name: fmt.Sprintf("Net %d", days), Days: days}, nil
	}
	if days, err := strconv.Atoi(s); err == nil {
		return PaymentTermsFromDays(days)
	}
	return PaymentTerms{}, fmt.Errorf("unrecognized payment terms %q", raw)
}

// PaymentTermsFromDays builds terms from an explicit day count.
func PaymentTermsFromDays(days int) (PaymentTerms, error) {
	if days < 0 {
		return PaymentTerms{}, fmt.Errorf("payment terms cannot be negative: %d", days)
	}
	if days == 0 {
		return DueOnReceipt(), nil
	}
	return PaymentTerms{Name: fmt.Sprintf("Net %d", days), Days: days}, nil
}

// DueDate derives the due date of a document issued on issueDate.
func (t PaymentTerms) DueDate(issueDate time.Time) time.Time {
	return issueDate.AddDate(0, 0, t.Days)
}

// CustomerSnapshot is the frozen copy of a customer's tax-relevant fields taken when a
// transaction is started. It contains no references, so assigning it copies it.
type CustomerSnapshot struct {
	CustomerID      string        `json:"customerId"`
	DisplayName     string        `json:"displayName"`
	CustomerName    string        `json:"customerName"`
	BillingAddress  Address       `json:"billingAddress"`
	ShippingAddress Address       `json:"shippingAddress"`
	GSTTreatment    GSTTreatment  `json:"gstTreatment"`
	TaxPreference   TaxPreference `json:"taxPreference"`
	ExemptionReason string        `json:"exemptionReason,omitempty"`
	GSTIN           string        `json:"gstin,omitempty"`
	PAN             string        `json:"pan,omitempty"`
	PlaceOfSupply   string        `json:"placeOfSupply,omitempty"`
	Currency        string        `json:"currency"`
	PaymentTerms    PaymentTerms  `json:"paymentTerms"`
}

// Name returns the display name, falling back to the legal customer name.
func (s CustomerSnapshot) Name() string {
	if strings.TrimSpace(s.DisplayName) != "" {
		return s.DisplayName
	}
	return s.CustomerName
}

// IsTaxExempt reports whether the customer opted out of tax.
func (s CustomerSnapshot) IsTaxExempt() bool {
	return s.TaxPreference == TaxPreferenceExempt
}
