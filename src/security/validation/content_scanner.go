package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/username/ledgerdesk/backend/src/logger"
)

var (
	// Common XSS vectors. Output encoding stays the primary defense.
	xssPatternsRegex = regexp.MustCompile(
		`(?i)<script|onerror=|onmouseover=|onfocus=|onload=|javascript:|vbscript:|<iframe|<object|<embed|<applet|<style|<link|<img\s+src\s*=\s*['"]?\s*(javascript|data):`,
	)
	// Spreadsheet formula triggers; payment notes end up in ledger exports.
	formulaInjectionPrefixRegex = regexp.MustCompile(`^[=+\-@\t\r]`)
)

func truncateForLog(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// CheckXSSPatterns detects basic XSS patterns in operator-entered text.
func CheckXSSPatterns(s, fieldName, contextID string) error {
	if xssPatternsRegex.MatchString(s) {
		errMsg := fmt.Sprintf("potential XSS pattern detected in field '%s'", fieldName)
		logger.L.Warn(errMsg, "contextID", contextID, "contentPreview", truncateForLog(s, 50))
		return fmt.Errorf("%w: %s", ErrValidationFailed, errMsg)
	}
	return nil
}

// CheckFormulaInjection detects if a string starts with a spreadsheet formula trigger.
func CheckFormulaInjection(s, fieldName, contextID string) error {
	prefixToCheck := strings.TrimSpace(s)
	if len(prefixToCheck) > 10 {
		prefixToCheck = prefixToCheck[:10]
	}
	if formulaInjectionPrefixRegex.MatchString(prefixToCheck) {
		errMsg := fmt.Sprintf("potential formula injection pattern detected in field '%s'", fieldName)
		logger.L.Warn(errMsg, "contextID", contextID, "contentPreview", truncateForLog(s, 50))
		return fmt.Errorf("%w: %s", ErrValidationFailed, errMsg)
	}
	return nil
}

// ScanFreeText runs every content check over a free-text field.
func ScanFreeText(s, fieldName, contextID string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := CheckXSSPatterns(s, fieldName, contextID); err != nil {
		return err
	}
	return CheckFormulaInjection(s, fieldName, contextID)
}
