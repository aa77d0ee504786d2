package validators

import (
	"strings"
	"unicode"
)

// SanitizeText trims donor-supplied free text, drops control characters other
// than newlines and tabs, and truncates to maxRunes without splitting a rune.
func SanitizeText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// SanitizeEmail normalises an address for receipts. Validation happens on the
// request struct; this only trims and lowercases.
func SanitizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
