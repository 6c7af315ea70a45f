package domain

// Source identifies which retrieval signal produced a candidate.
type Source string

const (
	// SourceLexical marks candidates from the BM25-style lexical index.
	SourceLexical Source = "lexical"
	// SourceDense marks candidates from the dense vector index.
	SourceDense Source = "dense"
	// SourceFacet marks candidates retrieved for a query-rewrite facet.
	SourceFacet Source = "facet"
)

// Candidate is a retrieval unit scored by one upstream signal.
// Scores are comparable only within the same Source; cross-source comparison
// happens after rank fusion, never on raw scores.
type Candidate struct {
	ID      string  `json:"id"`
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  Source  `json:"source"`
	// FacetID is set only when Source == SourceFacet.
	FacetID string `json:"facet_id,omitempty"`
	// HasAnchor reports whether the content carries a query anchor term
	// from the parsed include-set.
	HasAnchor bool `json:"has_anchor"`
}
