// Package util provides small helpers shared across inkpress: slug
// generation, request IP extraction, and sql.Null* conversions.
package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented letters and drops the combining marks,
// so "Crème" becomes "Creme".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a URL slug from free text: accents stripped, lowercased,
// runs of spaces and hyphens collapsed into single hyphens, everything else
// dropped.
func Slugify(s string) string {
	s, _, _ = transform.String(stripMarks, s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingHyphen = false
		case r == ' ' || r == '-':
			pendingHyphen = true
		}
	}
	return b.String()
}

// IsValidSlug reports whether s is already in canonical slug form: non-empty,
// lowercase alphanumerics and single interior hyphens only.
func IsValidSlug(s string) bool {
	if s == "" || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	var prev rune
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !ok || (r == '-' && prev == '-') {
			return false
		}
		prev = r
	}
	return true
}
