// Package explain produces per-result match explanations: keyword overlap
// between query and document, overlap ratio, and a document length signal.
package explain

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/hikawa/kensaku/internal/models"
)

const noOverlapSentence = "matched by semantic similarity with no direct keyword overlap"

// Tokenize lowercases s and splits it on every non-alphanumeric rune,
// dropping empty tokens.
func Tokenize(s string) []string {
	lower := strings.ToLower(s)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Explain builds the explanation for one result. Overlap keywords are the
// unique query tokens that also occur in the document, ordered by their first
// occurrence in the document. The overlap ratio is overlap size over the
// number of unique query tokens (zero when the query has none).
func Explain(queryText, docText string) models.Explanation {
	queryTokens := Tokenize(queryText)
	docTokens := Tokenize(docText)

	uniqueQuery := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		uniqueQuery[tok] = struct{}{}
	}

	seen := make(map[string]struct{}, len(uniqueQuery))
	// Non-nil so an empty overlap serializes as [] rather than null.
	overlap := []string{}
	for _, tok := range docTokens {
		if _, inQuery := uniqueQuery[tok]; !inQuery {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		overlap = append(overlap, tok)
	}

	var ratio float64
	if len(uniqueQuery) > 0 {
		ratio = float64(len(overlap)) / float64(len(uniqueQuery))
	}

	return models.Explanation{
		WhyMatched:      whyMatched(overlap),
		OverlapKeywords: overlap,
		OverlapRatio:    ratio,
		DocLengthNorm:   docLengthNorm(len(docTokens)),
	}
}

// docLengthNorm maps a token count into (0, 1]: 1 for an empty document,
// decaying logarithmically as the document grows.
func docLengthNorm(tokenCount int) float64 {
	return 1.0 / (1.0 + math.Log(1.0+float64(tokenCount)))
}

func whyMatched(overlap []string) string {
	if len(overlap) == 0 {
		return noOverlapSentence
	}
	shown := overlap
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return fmt.Sprintf("matched on keywords: %s", strings.Join(shown, ", "))
}
