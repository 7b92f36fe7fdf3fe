// Package textutil normalises free-text form input before it is stored or forwarded.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	upper        = cases.Upper(language.Und)
)

// CleanText strips markup, applies NFKC normalisation, drops control characters and collapses
// runs of whitespace. The result is truncated to maxRunes when maxRunes > 0.
func CleanText(value string, maxRunes int) string {
	if value == "" {
		return ""
	}
	// bluemonday escapes entities in text nodes; unescape so "O'Brien" survives intact.
	value = html.UnescapeString(strictPolicy.Sanitize(value))
	value = norm.NFKC.String(value)

	var b strings.Builder
	b.Grow(len(value))
	space := false
	count := 0
	for _, r := range value {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if maxRunes > 0 && count >= maxRunes {
			break
		}
		if space {
			b.WriteByte(' ')
			count++
			space = false
			if maxRunes > 0 && count >= maxRunes {
				break
			}
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}

// CleanEmail trims and lower-cases an address.
func CleanEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(value)))
}

// CleanPhone keeps digits and a leading plus sign. Full-width digits are folded first.
func CleanPhone(value string) string {
	value = norm.NFKC.String(strings.TrimSpace(value))
	var b strings.Builder
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CountryCode upper-cases a country code or name.
func CountryCode(value string) string {
	return upper.String(CleanText(value, 56))
}
