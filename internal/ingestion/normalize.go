package ingestion

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader turns a raw column header into a lookup key: trimmed,
// upper-cased without locale rules, stripped of combining accents and of
// every rune that is not a letter or digit. "Almacén Destino" becomes
// "ALMACENDESTINO" and "Año" becomes "ANO".
func NormalizeHeader(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}

	upper := cases.Upper(language.Und).String(trimmed)
	folded := foldAccents(upper)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldAccents decomposes s and drops the combining marks, keeping base letters.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
