package nl2sql

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spanishLower = cases.Lower(language.Spanish)

// NormalizeUtterance lower-cases text, strips diacritics and collapses whitespace, so
// "¿Qué   EMPRESAS hay?" becomes "¿que empresas hay?".
func NormalizeUtterance(text string) string {
	folded := spanishLower.String(text)
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(stripper, folded); err == nil {
		folded = stripped
	}
	return strings.Join(strings.Fields(folded), " ")
}
