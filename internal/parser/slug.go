package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns a title or file name into a post uid: diacritics stripped,
// lower case, runs of anything other than letters and digits folded into one
// hyphen.
func Slugify(s string) string {
	// transform.Chain keeps state, so build one per call.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(stripper, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugForFile derives a uid from a file name, ignoring its extension.
func SlugForFile(filename string) string {
	return Slugify(baseTitle(filename))
}
