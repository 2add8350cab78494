package embedding

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// defaultStopwords are dropped before hashing; they carry no topical signal.
var defaultStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {},
	"need": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "want": {}, "we": {}, "with": {}, "looking": {},
}

// Prepare returns the canonical form of text sent to any embedder: Unicode
// NFC, runs of whitespace collapsed to one space, trimmed.
func Prepare(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// Tokens case-folds text and splits it into word tokens, dropping stop
// words. Order and duplicates are preserved.
func Tokens(text string) []string {
	folded := cases.Fold().String(Prepare(text))
	words := wordRE.FindAllString(folded, -1)
	out := words[:0]
	for _, w := range words {
		if _, stop := defaultStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
