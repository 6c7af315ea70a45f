package evidence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// --- Stubs ---

type stubReranker struct {
	score float64
	err   error
	calls int
}

func (s *stubReranker) Rerank(_ context.Context, _, _ string) (float64, error) {
	s.calls++
	return s.score, s.err
}

type stubEntailer struct {
	score float64
	err   error
	calls int
}

func (s *stubEntailer) Entail(_ context.Context, _, _ string) (float64, error) {
	s.calls++
	return s.score, s.err
}

type memCache struct {
	mu sync.Mutex
	m  map[string]float64
}

func newMemCache() *memCache { return &memCache{m: map[string]float64{}} }

func (c *memCache) Get(_ context.Context, key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = score
}

func defaultCfg() domain.EvidenceConfig {
	return domain.DefaultPipelineConfig().Evidence
}

// --- Tests ---

func TestFilter_TwoBaseSignalsKeep(t *testing.T) {
	f := New(nil, nil, nil)
	res := f.Filter(context.Background(),
		"solar output",
		[]string{"solar output doubled last year"},
		[]string{"the report confirms solar output doubled last year across the region"},
		defaultCfg(),
	)

	if len(res.Kept) != 1 {
		t.Fatalf("kept %d sentences, want 1", len(res.Kept))
	}
	if res.Votes[0].Votes < 2 {
		t.Errorf("votes = %d, want >= 2", res.Votes[0].Votes)
	}
}

func TestFilter_QuorumInvariant(t *testing.T) {
	f := New(&stubReranker{score: 0.9}, nil, nil)
	res := f.Filter(context.Background(),
		"grid storage",
		[]string{
			"grid storage capacity tripled",
			"unrelated claim about ocean currents",
		},
		[]string{"grid storage capacity tripled according to operators"},
		defaultCfg(),
	)

	for _, v := range res.Votes {
		if v.Kept && v.Votes < 2 {
			t.Errorf("kept sentence %q with only %d votes", v.Sentence, v.Votes)
		}
	}
}

func TestFilter_SingleSignalDropped(t *testing.T) {
	cfg := defaultCfg()
	cfg.CoverageFloor = 0.9 // only jaccard can pass

	f := New(nil, nil, nil)
	res := f.Filter(context.Background(),
		"solar",
		[]string{"solar output doubled while wind stalled unexpectedly this quarter"},
		[]string{"solar output doubled"},
		cfg,
	)

	if len(res.Kept) != 0 {
		t.Errorf("one passing signal must not reach quorum, kept %v", res.Kept)
	}
}

func TestFilter_RerankerSuppliesSecondVote(t *testing.T) {
	cfg := defaultCfg()
	cfg.CoverageFloor = 0.95 // coverage fails, reranker must supply vote two

	sentence := "solar output doubled while wind stalled this quarter"
	evidence := []string{"solar output doubled"}

	t.Run("with reranker", func(t *testing.T) {
		f := New(&stubReranker{score: 0.8}, nil, nil)
		res := f.Filter(context.Background(), "solar", []string{sentence}, evidence, cfg)
		if len(res.Kept) != 1 {
			t.Errorf("reranker above floor should complete the quorum, kept %v", res.Kept)
		}
	})

	t.Run("without reranker the signal abstains", func(t *testing.T) {
		f := New(nil, nil, nil)
		res := f.Filter(context.Background(), "solar", []string{sentence}, evidence, cfg)
		if len(res.Kept) != 0 {
			t.Errorf("abstaining signal cannot vote, kept %v", res.Kept)
		}
		if res.Votes[0].Reranker.Evaluated {
			t.Error("reranker signal should be marked not evaluated")
		}
	})
}

func TestFilter_NumericMismatchDrops(t *testing.T) {
	f := New(nil, nil, nil)
	res := f.Filter(context.Background(),
		"solar growth",
		[]string{"solar output grew 42% in the region last year"},
		[]string{"solar output grew strongly in the region last year"},
		defaultCfg(),
	)

	if len(res.Kept) != 0 {
		t.Errorf("sentence with unsupported number must drop, kept %v", res.Kept)
	}
	if res.Votes[0].NumericEntityOK {
		t.Error("numeric check should have failed")
	}
}

func TestFilter_NumericMatchKeeps(t *testing.T) {
	f := New(nil, nil, nil)
	res := f.Filter(context.Background(),
		"solar growth",
		[]string{"solar output grew 42% in the region last year"},
		[]string{"solar output grew 42% in the region last year"},
		defaultCfg(),
	)

	if len(res.Kept) != 1 {
		t.Errorf("supported number should keep, got %v", res.Votes[0])
	}
}

func TestFilter_StrictNumericNeedsTwoSpans(t *testing.T) {
	cfg := defaultCfg()
	cfg.StrictNumeric = true

	sentence := "solar output grew 42% in the region"
	oneSpan := []string{"solar output grew 42% in the region"}
	twoSpans := []string{
		"solar output grew 42% in the region",
		"a second source also reports 42% growth",
	}

	f := New(nil, nil, nil)

	if res := f.Filter(context.Background(), "solar", []string{sentence}, oneSpan, cfg); len(res.Kept) != 0 {
		t.Errorf("strict mode with one span must drop, kept %v", res.Kept)
	}
	if res := f.Filter(context.Background(), "solar", []string{sentence}, twoSpans, cfg); len(res.Kept) != 1 {
		t.Error("strict mode with two spans should keep")
	}
}

func TestFilter_EpsilonBandNLITieBreaker(t *testing.T) {
	// Jaccard lands just below its floor (inside the epsilon band) and only
	// coverage passes: entailment decides.
	sentence := "alpha beta gamma delta"
	evidence := []string{"alpha beta zzz yyy xxx www"} // jaccard 0.25, coverage 0.5

	cfg := defaultCfg()
	cfg.JaccardFloor = 0.26
	cfg.EpsilonBand = 0.02

	t.Run("entailment keeps", func(t *testing.T) {
		ent := &stubEntailer{score: 0.9}
		res := New(nil, ent, nil).Filter(context.Background(), "q", []string{sentence}, evidence, cfg)
		if len(res.Kept) != 1 {
			t.Errorf("entailment above floor should keep the borderline sentence, votes %+v", res.Votes[0])
		}
		if ent.calls != 1 {
			t.Errorf("entailer calls = %d, want 1", ent.calls)
		}
	})

	t.Run("entailment drops", func(t *testing.T) {
		res := New(nil, &stubEntailer{score: 0.2}, nil).
			Filter(context.Background(), "q", []string{sentence}, evidence, cfg)
		if len(res.Kept) != 0 {
			t.Error("entailment below floor should drop the borderline sentence")
		}
	})

	t.Run("outside band entailer is not consulted", func(t *testing.T) {
		ent := &stubEntailer{score: 0.9}
		wide := cfg
		wide.JaccardFloor = 0.7 // far from 0.25
		New(nil, ent, nil).Filter(context.Background(), "q", []string{sentence}, evidence, wide)
		if ent.calls != 0 {
			t.Errorf("entailer called %d times outside the epsilon band", ent.calls)
		}
	})
}

func TestFilter_OrderPreserved(t *testing.T) {
	sentences := []string{
		"solar output doubled last year",
		"completely unsupported claim about dolphins",
		"wind capacity grew steadily last year",
	}
	evidence := []string{
		"solar output doubled last year per the grid report",
		"wind capacity grew steadily last year in coastal regions",
	}

	res := New(nil, nil, nil).Filter(context.Background(), "energy", sentences, evidence, defaultCfg())

	if len(res.Kept) != 2 {
		t.Fatalf("kept %d, want 2", len(res.Kept))
	}
	if res.Kept[0] != sentences[0] || res.Kept[1] != sentences[2] {
		t.Errorf("order not preserved: %v", res.Kept)
	}
}

func TestFilter_EmptyInputs(t *testing.T) {
	f := New(nil, nil, nil)

	if res := f.Filter(context.Background(), "q", nil, []string{"ev"}, defaultCfg()); len(res.Kept) != 0 || len(res.Votes) != 0 {
		t.Error("no sentences must yield an empty result, not an error")
	}
	if res := f.Filter(context.Background(), "q", []string{"claim"}, nil, defaultCfg()); len(res.Kept) != 0 {
		t.Error("no evidence means nothing can reach quorum")
	}
}

func TestFilter_RerankScoreCached(t *testing.T) {
	cfg := defaultCfg()
	cfg.CoverageFloor = 0.95

	rr := &stubReranker{score: 0.8}
	cache := newMemCache()
	f := New(rr, nil, cache)

	sentences := []string{"solar output doubled while wind stalled this quarter"}
	evidence := []string{"solar output doubled"}

	f.Filter(context.Background(), "solar", sentences, evidence, cfg)
	f.Filter(context.Background(), "solar", sentences, evidence, cfg)

	if rr.calls != 1 {
		t.Errorf("reranker calls = %d, want 1 (second pass served from cache)", rr.calls)
	}
}

func TestFilter_RerankBudgetBoundsCalls(t *testing.T) {
	cfg := defaultCfg()
	cfg.RerankTopN = 1
	cfg.CacheEnabled = false

	rr := &stubReranker{score: 0.8}
	f := New(rr, nil, nil)

	sentences := []string{
		"first sentence about solar",
		"second sentence about solar",
		"third sentence about solar",
	}
	f.Filter(context.Background(), "solar", sentences, []string{"about solar"}, cfg)

	if rr.calls != 1 {
		t.Errorf("reranker calls = %d, want budget-limited 1", rr.calls)
	}
}

func TestFilter_RerankerFailureMarksPartial(t *testing.T) {
	rr := &stubReranker{err: errors.New("model cold start")}
	f := New(rr, nil, nil)

	res := f.Filter(context.Background(),
		"solar",
		[]string{"solar output doubled last year"},
		[]string{"solar output doubled last year in the report"},
		defaultCfg(),
	)

	if !res.Partial {
		t.Error("upstream reranker failure must mark the result partial")
	}
	if len(res.Kept) != 1 {
		t.Error("base signals should still carry the quorum on reranker failure")
	}
}
