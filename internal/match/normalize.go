// Package match implements name normalization and fuzzy name scoring.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// surname prefixes dropped from the front of each token
var prefixes = []string{"o'", "o’", "mac", "mc"}

// minimum length a token must keep after a prefix is dropped
const minPrefixRemainder = 2

var stripPunct = strings.NewReplacer("'", "", "’", "", "‘", "", "-", "", "‐", "", "–", "")

// Normalize lowercases s, strips diacritics, drops leading O'/Mc/Mac prefixes
// from every token, removes apostrophes and hyphens and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	s = stripDiacritics(s)

	fields := strings.Fields(s)
	out := fields[:0]
	for _, tok := range fields {
		tok = dropPrefix(tok)
		tok = stripPunct.Replace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}

	return strings.Join(out, " ")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func dropPrefix(tok string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(tok, p) && len([]rune(tok))-len([]rune(p)) >= minPrefixRemainder {
			return tok[len(p):]
		}
	}
	return tok
}
