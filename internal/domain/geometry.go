package domain

// GeometryReport describes the shape of the dense score distribution for one
// query and whether dense ranking should be trusted.
type GeometryReport struct {
	Top1Margin       float64 `json:"top1_margin"`
	Entropy          float64 `json:"entropy"`
	RewriteAgreement float64 `json:"rewrite_agreement"`
	RouteToLexical   bool    `json:"route_to_lexical"`
	// Partial marks a report computed from an incomplete dense signal
	// (upstream timeout or failure).
	Partial bool `json:"partial,omitempty"`
}
