// Package textutil normalizes Romanian text for storage and search.
// Registry dumps arrive in a mix of diacritic forms (ș vs ş, cedilla vs
// comma-below), so everything is folded to plain ASCII before matching.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// FoldDiacritics strips combining marks: "Constanța" -> "Constanta".
// Input that fails to transform is returned unchanged.
func FoldDiacritics(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeQuery folds, trims and upper-cases a search term the same
// way firm names are stored.
func NormalizeQuery(s string) string {
	return strings.ToUpper(strings.TrimSpace(FoldDiacritics(s)))
}

// NormalizeCUI strips spaces and an optional RO prefix from a fiscal
// code, returning the bare digits used as the firms primary key.
func NormalizeCUI(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	return strings.TrimPrefix(s, "RO")
}

// IsDigits reports whether s is non-empty and all ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DigitsOnly keeps only the digit runes of s. Score columns in CRM
// exports show up as "10 pct" or "scor: 7"; the digits are the value.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
