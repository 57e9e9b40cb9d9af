package models

// Explanation describes why a document matched a query.
type Explanation struct {
	// WhyMatched is a templated human-readable sentence naming the overlap keywords,
	// or a fixed no-overlap sentence when the set is empty.
	WhyMatched string `json:"why_matched"`
	// OverlapKeywords are lowercase tokens common to query and document,
	// ordered by first appearance in the document.
	OverlapKeywords []string `json:"overlap_keywords"`
	// OverlapRatio is overlap count / unique query token count (0 for a token-free query).
	OverlapRatio float64 `json:"overlap_ratio"`
	// DocLengthNorm is 1 / (1 + ln(1 + docTokens)), in (0, 1]; shorter documents
	// score closer to 1.
	DocLengthNorm float64 `json:"doc_length_norm"`
}

// RankedResult is a single ranked search hit. Score is the raw inner product
// from the vector index, reported as-is.
type RankedResult struct {
	DocID       string      `json:"doc_id"`
	Score       float64     `json:"score"`
	Preview     string      `json:"preview"`
	Explanation Explanation `json:"explanation"`
}

// SearchRequest is the HTTP search request body.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResponse is the HTTP search response.
type SearchResponse struct {
	Results   []*RankedResult `json:"results"`
	Query     string          `json:"query"`
	QueryTime int64           `json:"query_time_ms"`
}
