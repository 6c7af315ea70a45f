package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/usecase/evidence"
)

type stubLexical struct {
	mu      sync.Mutex
	queries []string
	byQuery map[string][]domain.Candidate
	err     error
}

func (s *stubLexical) SearchLexical(_ context.Context, query string, _ domain.Hints, _ int) ([]domain.Candidate, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.byQuery[query], nil
}

func (s *stubLexical) seen(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queries {
		if q == query {
			return true
		}
	}
	return false
}

type stubDense struct {
	cands []domain.Candidate
	err   error
}

func (s *stubDense) SearchDense(context.Context, string, int) ([]domain.Candidate, error) {
	return s.cands, s.err
}

type stubGenerator struct {
	sentences []string
	err       error
}

func (s *stubGenerator) Generate(context.Context, string, []domain.Candidate) ([]string, error) {
	return s.sentences, s.err
}

type stubRecorder struct {
	mu      sync.Mutex
	latency time.Duration
	failed  bool
	calls   int
}

func (s *stubRecorder) RecordQuery(latency time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency, s.failed, s.calls = latency, failed, s.calls+1
}

func lexCand(id, content string) domain.Candidate {
	return domain.Candidate{ID: id, DocID: id, Content: content, Source: domain.SourceLexical}
}

func newService(t *testing.T, lex domain.LexicalSearcher, dense domain.DenseSearcher, gen domain.Generator, rec Recorder) *Service {
	t.Helper()
	svc, err := New(lex, dense, gen,
		evidence.New(nil, nil, nil), rec,
		domain.DefaultPipelineConfig(), time.Second)
	require.NoError(t, err)
	return svc
}

func TestRunEmptyQuery(t *testing.T) {
	svc := newService(t, &stubLexical{}, &stubDense{}, nil, nil)

	result := svc.Run(context.Background(), Request{})

	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Passages)
	assert.Empty(t, result.KeptSentences)
	assert.False(t, result.InsufficientEvidence)
}

func TestRunFusesBothSignals(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"quarterly revenue trends": {
			lexCand("a", "quarterly revenue rose in the north region"),
			lexCand("b", "unrelated shipping manifest"),
		},
	}}
	dense := &stubDense{cands: []domain.Candidate{
		{ID: "a", DocID: "a", Content: "quarterly revenue rose in the north region", Score: 0.9, Source: domain.SourceDense},
		{ID: "c", DocID: "c", Content: "annual report summary", Score: 0.4, Source: domain.SourceDense},
	}}
	rec := &stubRecorder{}
	svc := newService(t, lex, dense, nil, rec)

	result := svc.Run(context.Background(), Request{
		Query:     "quarterly revenue trends",
		Sentences: []string{"quarterly revenue rose in the north region"},
	})

	require.NotEmpty(t, result.Passages)
	// Candidate "a" ranks in both lists and must come first.
	assert.Equal(t, "a", result.Passages[0].ID)
	assert.Empty(t, result.Degraded)
	assert.Equal(t, []string{"quarterly revenue rose in the north region"}, result.KeptSentences)
	assert.False(t, result.InsufficientEvidence)
	assert.Equal(t, 1, rec.calls)
	assert.False(t, rec.failed)
}

func TestRunDenseFailureDegrades(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"service outage": {lexCand("a", "the service outage lasted two hours")},
	}}
	dense := &stubDense{err: context.DeadlineExceeded}
	svc := newService(t, lex, dense, nil, nil)

	result := svc.Run(context.Background(), Request{Query: "service outage"})

	assert.Contains(t, result.Degraded, "dense")
	assert.True(t, result.Geometry.Partial)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "a", result.Passages[0].ID)
}

func TestRunRoutesFlatDenseToLexical(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"ambiguous query": {lexCand("lex-only", "matching lexical hit")},
	}}
	flat := make([]domain.Candidate, 10)
	for i := range flat {
		flat[i] = domain.Candidate{
			ID: "dense-" + string(rune('a'+i)), DocID: "dense-" + string(rune('a'+i)),
			Content: "indistinct dense hit", Score: 0.5, Source: domain.SourceDense,
		}
	}
	svc := newService(t, lex, &stubDense{cands: flat}, nil, nil)

	result := svc.Run(context.Background(), Request{Query: "ambiguous query", RewriteAgreement: 0.1})

	assert.True(t, result.Geometry.RouteToLexical)
	for _, p := range result.Passages {
		assert.Equal(t, domain.SourceLexical, p.Source)
	}
}

func TestRunKeptFacetRetrieved(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"base query":           {lexCand("a", "base hit")},
		"rewritten facet view": {lexCand("f1-doc", "facet specific passage")},
	}}
	svc := newService(t, lex, &stubDense{}, nil, nil)

	result := svc.Run(context.Background(), Request{
		Query: "base query",
		Facets: []domain.Facet{
			{ID: "f1", RewrittenQuery: "rewritten facet view", NewDocCount: 10, EntityOverlap: 0.8},
			{ID: "f2", RewrittenQuery: "noise rewrite", NewDocCount: 0, EntityOverlap: 0},
		},
	})

	require.Len(t, result.Facets, 2)
	assert.True(t, result.Facets[0].Keep)
	assert.False(t, result.Facets[1].Keep)
	assert.True(t, lex.seen("rewritten facet view"))
	assert.False(t, lex.seen("noise rewrite"))

	var facetIDs []string
	for _, p := range result.Passages {
		if p.Source == domain.SourceFacet {
			facetIDs = append(facetIDs, p.FacetID)
		}
	}
	assert.Equal(t, []string{"f1"}, facetIDs)
}

func TestRunFacetFailureDegradesOnlyFacet(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"base query": {lexCand("a", "base hit")},
		// rewritten query has no entry, stub returns nil without error;
		// use a failing dedicated stub instead
	}}
	// A facet whose retrieval errors degrades facet:<id> but keeps the run.
	failing := &facetFailingLexical{inner: lex, failOn: "broken rewrite"}
	svc := newService(t, failing, &stubDense{}, nil, nil)

	result := svc.Run(context.Background(), Request{
		Query: "base query",
		Facets: []domain.Facet{
			{ID: "f1", RewrittenQuery: "broken rewrite", NewDocCount: 10, EntityOverlap: 0.9},
		},
	})

	assert.Contains(t, result.Degraded, "facet:f1")
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "a", result.Passages[0].ID)
}

type facetFailingLexical struct {
	inner  *stubLexical
	failOn string
}

func (f *facetFailingLexical) SearchLexical(ctx context.Context, query string, hints domain.Hints, topK int) ([]domain.Candidate, error) {
	if query == f.failOn {
		return nil, domain.ErrUpstreamUnavailable
	}
	return f.inner.SearchLexical(ctx, query, hints, topK)
}

func TestRunGeneratorDraftsWhenNoSentences(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"deploy cadence": {lexCand("a", "teams deploy weekly on thursdays")},
	}}
	gen := &stubGenerator{sentences: []string{"teams deploy weekly on thursdays"}}
	svc := newService(t, lex, &stubDense{}, gen, nil)

	result := svc.Run(context.Background(), Request{Query: "deploy cadence"})

	assert.Equal(t, []string{"teams deploy weekly on thursdays"}, result.KeptSentences)
	assert.NotContains(t, result.Degraded, "generator")
}

func TestRunGeneratorFailureDegrades(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"deploy cadence": {lexCand("a", "teams deploy weekly")},
	}}
	gen := &stubGenerator{err: domain.ErrModelProviderError}
	svc := newService(t, lex, &stubDense{}, gen, nil)

	result := svc.Run(context.Background(), Request{Query: "deploy cadence"})

	assert.Contains(t, result.Degraded, "generator")
	assert.Empty(t, result.KeptSentences)
	assert.False(t, result.InsufficientEvidence)
}

func TestRunInsufficientEvidence(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"database latency": {lexCand("a", "database latency increased last month")},
	}}
	svc := newService(t, lex, &stubDense{}, nil, nil)

	result := svc.Run(context.Background(), Request{
		Query:     "database latency",
		Sentences: []string{"unrelated claim about weather patterns"},
	})

	assert.Empty(t, result.KeptSentences)
	assert.True(t, result.InsufficientEvidence)
}

func TestRunBothSignalsFailedRecordsFailure(t *testing.T) {
	rec := &stubRecorder{}
	svc := newService(t, &stubLexical{err: domain.ErrUpstreamUnavailable},
		&stubDense{err: domain.ErrUpstreamUnavailable}, nil, rec)

	result := svc.Run(context.Background(), Request{Query: "anything"})

	assert.ElementsMatch(t, []string{"lexical", "dense"}, result.Degraded)
	assert.Empty(t, result.Passages)
	assert.True(t, rec.failed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := domain.DefaultPipelineConfig()
	cfg.Fusion.RRFK = -1

	_, err := New(&stubLexical{}, &stubDense{}, nil, evidence.New(nil, nil, nil), nil, cfg, time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestProbesAllPass(t *testing.T) {
	svc := newService(t, &stubLexical{}, &stubDense{}, nil, nil)

	probes := svc.Probes()
	components := make([]string, 0, len(probes))
	for _, p := range probes {
		assert.NoError(t, p.Run(context.Background()), p.Component)
		components = append(components, p.Component)
	}
	assert.ElementsMatch(t, []string{
		"segmenter", "query_parser", "geometry_router",
		"facet_selector", "fusion_engine", "evidence_filter",
	}, components)
}

func TestRunTopKOverrideTruncates(t *testing.T) {
	lex := &stubLexical{byQuery: map[string][]domain.Candidate{
		"quarterly revenue trends": {
			lexCand("a", "quarterly revenue rose in the north region"),
			lexCand("b", "unrelated shipping manifest"),
		},
	}}
	dense := &stubDense{cands: []domain.Candidate{
		{ID: "a", DocID: "a", Content: "quarterly revenue rose in the north region", Score: 0.9, Source: domain.SourceDense},
		{ID: "c", DocID: "c", Content: "annual report summary", Score: 0.4, Source: domain.SourceDense},
	}}
	svc := newService(t, lex, dense, nil, nil)

	result := svc.Run(context.Background(), Request{
		Query: "quarterly revenue trends",
		TopK:  1,
	})

	require.Len(t, result.Passages, 1)
	assert.Equal(t, "a", result.Passages[0].ID)
}
