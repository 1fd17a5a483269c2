package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/utils"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxGSTINLength         = 15
	MaxPANLength           = 10
	MaxCurrencyCodeLength  = 3
	MaxReferenceLength     = 100
	MaxNotesLength         = 1024
)

// ISODateLayout is the date format exchanged with the ledger and the editing surface.
const ISODateLayout = "2006-01-02"

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateNonNegativeAmount rejects negative monetary values.
func ValidateNonNegativeAmount(d decimal.Decimal, fieldName string) error {
	if d.IsNegative() {
		logger.L.Warn("Negative value not allowed for field", "field", fieldName, "value", d.String())
		return fmt.Errorf("%w: %s cannot be negative", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateAmountNotAbove rejects values greater than limit.
func ValidateAmountNotAbove(d, limit decimal.Decimal, fieldName, limitName string) error {
	if d.GreaterThan(limit) {
		return fmt.Errorf("%w: %s (%s) cannot exceed %s (%s)", ErrValidationFailed, fieldName, d.String(), limitName, limit.String())
	}
	return nil
}

// ValidateAmountPrecision rejects values with more than places decimal digits.
func ValidateAmountPrecision(d decimal.Decimal, places int32, fieldName string) error {
	if !d.Equal(d.Truncate(places)) {
		return fmt.Errorf("%w: %s (%s) has more than %d decimal places", ErrValidationFailed, fieldName, d.String(), places)
	}
	return nil
}

// --- Date Validator ---

// ValidateDateString parses an ISO date ("YYYY-MM-DD"). An RFC 3339 timestamp is
// accepted and truncated to its date.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	if t, err := time.Parse(ISODateLayout, trimmed); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD)", ErrValidationFailed, fieldName, s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// --- Specific Format Validators ---

var (
	gstinRegex        = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	panRegex          = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	referenceRegex    = regexp.MustCompile(`^[a-zA-Z0-9_/#.\- ]+$`)
)

// ValidateGSTIN checks the 15-character GSTIN layout and that its state prefix exists.
// Empty values pass; whether a GSTIN is required depends on the GST treatment.
func ValidateGSTIN(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxGSTINLength, "GSTIN"); err != nil {
		return err
	}
	if err := ValidateStringRegex(trimmed, gstinRegex, "GSTIN", "2-digit state code, 10-character PAN, entity code, 'Z', checksum"); err != nil {
		return err
	}
	if utils.StateCodeFromGSTIN(trimmed) == "" {
		return fmt.Errorf("%w: GSTIN ('%s') carries an unknown state code", ErrValidationFailed, s)
	}
	return nil
}

// ValidatePAN checks the 10-character PAN layout. Empty values pass.
func ValidatePAN(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxPANLength, "PAN"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, panRegex, "PAN", "5 letters, 4 digits, 1 letter")
}

// ValidateCurrencyCode checks if currency code is 3 uppercase letters.
func ValidateCurrencyCode(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxCurrencyCodeLength, "Currency Code"); err != nil {
		return err
	}
	if !currencyCodeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Currency Code ('%s') is not in the expected format (3 uppercase letters)", ErrValidationFailed, s)
	}
	return nil
}

// ValidateStateCode accepts empty values and anything that resolves to a known GST state.
func ValidateStateCode(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !utils.IsKnownState(s) {
		return fmt.Errorf("%w: %s ('%s') is not a known state", ErrValidationFailed, fieldName, s)
	}
	return nil
}

// ValidateReferenceNumber checks format and length for a payment reference.
func ValidateReferenceNumber(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxReferenceLength, "Reference Number"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, referenceRegex, "Reference Number", "letters, digits, spaces and / # . - _")
}
