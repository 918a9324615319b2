package lpr

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NormalizePlate folds full-width forms, removes padding underscores and
// whitespace, and upper-cases the result.
func NormalizePlate(text string) string {
	folded := width.Fold.String(text)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// IsPadChar reports whether r is a recognizer padding character.
func IsPadChar(r rune) bool {
	return r == '_' || r == ' '
}
