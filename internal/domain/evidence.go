package domain

// Signal is one independent support signal for an answer sentence.
// Evaluated distinguishes "signal unavailable" from "computed and failed":
// only evaluated signals may vote.
type Signal struct {
	Evaluated bool    `json:"evaluated"`
	Pass      bool    `json:"pass"`
	Score     float64 `json:"score"`
}

// EvidenceVote is the per-sentence gating outcome.
type EvidenceVote struct {
	Sentence        string  `json:"sentence"`
	Jaccard         float64 `json:"jaccard"`
	Coverage        float64 `json:"coverage"`
	NumericEntityOK bool    `json:"numeric_entity_ok"`
	Reranker        Signal  `json:"reranker"`
	Entailment      Signal  `json:"entailment"`
	Votes           int     `json:"votes"`
	Kept            bool    `json:"kept"`
	// Partial marks a vote taken while one or more optional signals were
	// unavailable upstream.
	Partial bool `json:"partial,omitempty"`
}
