package matcher

import (
	"strings"
	"unicode"
)

// wordSet lowercases text, strips punctuation and tokenizes into a set of
// words.
func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// overlapRatio is the share of the chunk's words that also appear in the
// candidate record's text. Semantic similarity alone is too permissive for
// topically related but non-duplicate speech; this anchors acceptance to
// genuinely shared wording.
func overlapRatio(chunkText, recordText string) float64 {
	chunkWords := wordSet(chunkText)
	if len(chunkWords) == 0 {
		return 0
	}
	recordWords := wordSet(recordText)
	var overlap int
	for w := range chunkWords {
		if _, ok := recordWords[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(chunkWords))
}
