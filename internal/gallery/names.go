package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the canonical identity key: NFC-normalized with
// surrounding whitespace removed. An empty result is not a valid identity.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldName normalizes a name for loose comparison (lowercase, no diacritics,
// spaces for dashes). It is used for lookups typed by a human, never as a key.
func FoldName(name string) string {
	name = RemoveDiacritics(NormalizeName(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
