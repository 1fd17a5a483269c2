package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy *bluemonday.Policy

func init() {
	strictHTMLPolicy = bluemonday.StrictPolicy()
}

// SanitizeText strips all HTML from s. Customer names and addresses arrive from the
// ledger and are echoed back to the browser inside view models.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// CleanText trims, strips unprintable runes and removes HTML. Entities escaped by the
// policy are decoded again so "A & B" survives as typed; JSON encoding escapes the rest.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(SanitizeText(StripUnprintable(s))))
}
