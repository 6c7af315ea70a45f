package domain

import "context"

// LexicalSearcher queries the external BM25-style index.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, hints Hints, topK int) ([]Candidate, error)
}

// DenseSearcher queries the external vector index.
type DenseSearcher interface {
	SearchDense(ctx context.Context, query string, topK int) ([]Candidate, error)
}

// Reranker scores query/candidate relevance with a cross-encoder model.
type Reranker interface {
	Rerank(ctx context.Context, query, candidate string) (float64, error)
}

// Entailer scores premise/hypothesis entailment with an NLI model.
type Entailer interface {
	Entail(ctx context.Context, premise, hypothesis string) (float64, error)
}

// Generator drafts answer sentences from selected passages.
type Generator interface {
	Generate(ctx context.Context, query string, passages []Candidate) ([]string, error)
}
