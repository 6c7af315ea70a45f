package fusegate

import (
	"context"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/usecase/pipeline"
)

// Hints are the boolean constraints parsed from (or supplied with) a query.
type Hints struct {
	Include []string
	Exclude []string
	Or      []string
}

// SearchHit is one result from an upstream index.
type SearchHit struct {
	ID      string
	DocID   string
	Content string
	Score   float64
}

// LexicalSearcher is a user-supplied lexical index.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, hints Hints, topK int) ([]SearchHit, error)
}

// DenseSearcher is a user-supplied dense vector index.
type DenseSearcher interface {
	SearchDense(ctx context.Context, query string, topK int) ([]SearchHit, error)
}

// FacetRewrite is one upstream query rewrite to retrieve alongside the
// original query.
type FacetRewrite struct {
	ID    string
	Query string
}

// Query is one pipeline invocation.
type Query struct {
	Text   string
	Facets []FacetRewrite
	// Sentences are pre-drafted answer sentences to gate. When empty and a
	// generator model is configured, sentences are drafted from the
	// selected passages.
	Sentences []string
}

// Passage is one selected passage in a pipeline result.
type Passage struct {
	ID        string
	DocID     string
	Content   string
	Score     float64
	Source    string
	HasAnchor bool
}

// Result is the pipeline outcome for one query.
type Result struct {
	RunID           string
	Passages        []Passage
	KeptSentences   []string
	RoutedToLexical bool
	// Degraded lists lost signals; the result is still best-effort usable.
	Degraded             []string
	InsufficientEvidence bool
}

func toResult(r pipeline.Result) Result {
	out := Result{
		RunID:                r.RunID,
		KeptSentences:        r.KeptSentences,
		RoutedToLexical:      r.Geometry.RouteToLexical,
		Degraded:             r.Degraded,
		InsufficientEvidence: r.InsufficientEvidence,
	}
	for _, c := range r.Passages {
		out.Passages = append(out.Passages, Passage{
			ID:        c.ID,
			DocID:     c.DocID,
			Content:   c.Content,
			Score:     c.Score,
			Source:    string(c.Source),
			HasAnchor: c.HasAnchor,
		})
	}
	return out
}

func toFacets(rewrites []FacetRewrite) []domain.Facet {
	facets := make([]domain.Facet, 0, len(rewrites))
	for _, f := range rewrites {
		facets = append(facets, domain.Facet{ID: f.ID, RewrittenQuery: f.Query})
	}
	return facets
}

// lexicalAdapter wraps the public LexicalSearcher to satisfy the internal
// search port.
type lexicalAdapter struct {
	inner LexicalSearcher
}

func (a *lexicalAdapter) SearchLexical(ctx context.Context, query string, hints domain.Hints, topK int) ([]domain.Candidate, error) {
	hits, err := a.inner.SearchLexical(ctx, query, Hints{
		Include: hints.Include,
		Exclude: hints.Exclude,
		Or:      hints.Or,
	}, topK)
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, domain.SourceLexical), nil
}

type denseAdapter struct {
	inner DenseSearcher
}

func (a *denseAdapter) SearchDense(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	hits, err := a.inner.SearchDense(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, domain.SourceDense), nil
}

func toCandidates(hits []SearchHit, source domain.Source) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		docID := h.DocID
		if docID == "" {
			docID = h.ID
		}
		out = append(out, domain.Candidate{
			ID:      h.ID,
			DocID:   docID,
			Content: h.Content,
			Score:   h.Score,
			Source:  source,
		})
	}
	return out
}
