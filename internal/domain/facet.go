package domain

// Facet is an alternate phrasing of the original query, issued as a
// separate retrieval request when kept by the yield selector.
type Facet struct {
	ID             string `json:"id"`
	RewrittenQuery string `json:"rewritten_query"`
	// NewDocCount is the number of documents this facet surfaced that no
	// other signal retrieved on a probe pass.
	NewDocCount int `json:"new_doc_count"`
	// EntityOverlap in [0,1] measures shared entities with the original query.
	EntityOverlap float64 `json:"entity_overlap"`
	YieldScore    float64 `json:"yield_score"`
	Keep          bool    `json:"keep"`
}
