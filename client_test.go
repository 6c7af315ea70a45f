package fusegate

import (
	"context"
	"testing"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

type stubLexical struct {
	hits  []SearchHit
	hints Hints
}

func (s *stubLexical) SearchLexical(_ context.Context, _ string, hints Hints, _ int) ([]SearchHit, error) {
	s.hints = hints
	return s.hits, nil
}

type stubDense struct {
	hits []SearchHit
}

func (s *stubDense) SearchDense(_ context.Context, _ string, _ int) ([]SearchHit, error) {
	return s.hits, nil
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	lex := &stubLexical{hits: []SearchHit{
		{ID: "a", Content: "quarterly revenue rose in the north region", Score: 3.1},
		{ID: "b", Content: "unrelated shipping manifest", Score: 1.2},
	}}
	dense := &stubDense{hits: []SearchHit{
		{ID: "a", Content: "quarterly revenue rose in the north region", Score: 0.9},
		{ID: "c", Content: "annual report summary", Score: 0.4},
	}}
	c, err := New(append([]Option{WithSearchers(lex, dense), WithoutScoreCache()}, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNew_NoBackends(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error when no search backend provided")
	}
}

func TestClientRun(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	res, err := c.Run(context.Background(), Query{
		Text:      "quarterly revenue trends",
		Sentences: []string{"quarterly revenue rose in the north region"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RunID == "" {
		t.Error("run ID is empty")
	}
	if len(res.Passages) == 0 {
		t.Fatal("no passages selected")
	}
	if res.Passages[0].ID != "a" {
		t.Errorf("first passage = %q, want %q", res.Passages[0].ID, "a")
	}
	if len(res.KeptSentences) != 1 {
		t.Fatalf("kept sentences = %d, want 1", len(res.KeptSentences))
	}
	if res.InsufficientEvidence {
		t.Error("supported sentence flagged as insufficient evidence")
	}
}

func TestClientRun_InsufficientEvidence(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	res, err := c.Run(context.Background(), Query{
		Text:      "quarterly revenue trends",
		Sentences: []string{"unrelated claim about weather patterns"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.KeptSentences) != 0 {
		t.Errorf("kept sentences = %d, want 0", len(res.KeptSentences))
	}
	if !res.InsufficientEvidence {
		t.Error("unsupported sentence not flagged")
	}
}

func TestClientHealth(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != string(domain.ProbeHealthy) {
		t.Errorf("status = %q, want %q", status, domain.ProbeHealthy)
	}
}

func TestWithTopK(t *testing.T) {
	c := newTestClient(t, WithTopK(5))
	defer c.Close()

	if got := c.pipe.Config().Fusion.TopK; got != 5 {
		t.Errorf("topK = %d, want 5", got)
	}
}

func TestLexicalAdapter_ForwardsHints(t *testing.T) {
	inner := &stubLexical{hits: []SearchHit{{ID: "x", Content: "body"}}}
	adapter := &lexicalAdapter{inner: inner}

	cands, err := adapter.SearchLexical(context.Background(), "q", domain.Hints{
		Include: []string{"alpha"},
		Exclude: []string{"beta"},
	}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.hints.Include) != 1 || inner.hints.Include[0] != "alpha" {
		t.Errorf("include hints not forwarded: %v", inner.hints.Include)
	}
	if len(inner.hints.Exclude) != 1 || inner.hints.Exclude[0] != "beta" {
		t.Errorf("exclude hints not forwarded: %v", inner.hints.Exclude)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	if cands[0].Source != domain.SourceLexical {
		t.Errorf("source = %q, want lexical", cands[0].Source)
	}
	// DocID falls back to ID when the index omits it.
	if cands[0].DocID != "x" {
		t.Errorf("doc ID = %q, want %q", cands[0].DocID, "x")
	}
}
