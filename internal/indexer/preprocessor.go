package indexer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// "hybrid dominant", "indica-dominant" and "sativadominant" all mean the
	// strain type. Repeated suffixes are absorbed in one match.
	dominantPattern = regexp.MustCompile(`\b(hybrid|indica|sativa)(?: ?dominant)+\b`)
	// Cannabinoid content such as "thc: 20 %", "THC20" or "cbd 0.5%".
	cannabinoidPattern = regexp.MustCompile(`\b(thc|cbd|cbg|cbn|thca|cbda)\s*(\d+(?:\.\d+)?)\s*%?`)
	// Any number followed by a detached percent sign.
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+%`)
	percentWord    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*percent\b`)
)

// Normalize canonicalizes text before it is embedded. Catalog descriptions
// and queries must both go through it so they land in the same space:
// lower-case, punctuation except '%' (and decimal points) replaced by
// spaces, percentages attached to their number, cannabinoid content written
// as "thc 20%", "<type> dominant" reduced to the type, whitespace collapsed.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	out := strings.ToLower(text)
	for {
		next := normalizePass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func normalizePass(s string) string {
	s = collapseSpaces(stripPunctuation(s))
	s = percentWord.ReplaceAllString(s, "$1%")
	s = percentPattern.ReplaceAllString(s, "$1%")
	s = cannabinoidPattern.ReplaceAllString(s, "$1 $2%")
	s = dominantPattern.ReplaceAllString(s, "$1")
	return collapseSpaces(s)
}

// stripPunctuation replaces every rune that is not a letter, digit,
// underscore, whitespace or '%' with a space. A '.' between two digits is kept.
func stripPunctuation(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '%', unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '.' && i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// collapseSpaces trims text and turns every whitespace run into one space.
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
