package fusion

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

func defaultCfg() domain.FusionConfig {
	return domain.DefaultPipelineConfig().Fusion
}

func cand(id, doc, content string) domain.Candidate {
	return domain.Candidate{ID: id, DocID: doc, Content: content}
}

func lexList(cands ...domain.Candidate) SourceList {
	return SourceList{Source: domain.SourceLexical, Weight: 1.0, Kept: true, Candidates: cands}
}

func denseList(cands ...domain.Candidate) SourceList {
	return SourceList{Source: domain.SourceDense, Weight: 1.0, Kept: true, Candidates: cands}
}

func TestFuse_Idempotent(t *testing.T) {
	lists := []SourceList{
		lexList(cand("a", "d1", "alpha beta"), cand("b", "d2", "gamma delta")),
		denseList(cand("b", "d2", "gamma delta"), cand("c", "d3", "epsilon zeta")),
	}

	first := Fuse(lists, domain.Hints{}, defaultCfg())
	second := Fuse(lists, domain.Hints{}, defaultCfg())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("fusion is not idempotent:\nfirst  = %v\nsecond = %v", first, second)
	}
}

func TestFuse_OverlapOutranksSingleSource(t *testing.T) {
	lists := []SourceList{
		lexList(cand("only-lex", "d1", "alpha"), cand("both", "d2", "beta")),
		denseList(cand("both", "d2", "beta"), cand("only-dense", "d3", "gamma")),
	}

	out := Fuse(lists, domain.Hints{}, defaultCfg())

	if len(out) != 3 {
		t.Fatalf("got %d candidates, want 3", len(out))
	}
	if out[0].ID != "both" {
		t.Errorf("top candidate = %s, want the one appearing in both lists", out[0].ID)
	}
}

func TestFuse_AnchorBoostMonotonic(t *testing.T) {
	hints := domain.Hints{Include: []string{"solar"}}
	lists := []SourceList{
		lexList(
			cand("plain", "d1", "wind turbine output"),
			cand("anchored", "d2", "solar panel output"),
		),
	}

	baseline := Fuse(lists, hints, defaultCfg())
	if baseline[0].ID != "anchored" {
		t.Fatalf("anchored candidate should lead, got %s", baseline[0].ID)
	}

	// Raising the boost must never lower the anchored candidate's rank.
	boosted := defaultCfg()
	boosted.AnchorBoost = 1.8
	out := Fuse(lists, hints, boosted)
	if out[0].ID != "anchored" {
		t.Errorf("raised boost demoted the anchored candidate to %s", out[0].ID)
	}
	if out[0].Score < baseline[0].Score {
		t.Errorf("raised boost lowered the fused score: %f < %f", out[0].Score, baseline[0].Score)
	}
}

func TestFuse_MissingAnchorPenalized(t *testing.T) {
	hints := domain.Hints{Include: []string{"solar"}}
	lists := []SourceList{
		lexList(cand("plain", "d1", "wind turbine output")),
	}

	withAnchors := Fuse(lists, hints, defaultCfg())
	noAnchors := Fuse(lists, domain.Hints{}, defaultCfg())

	if withAnchors[0].Score >= noAnchors[0].Score {
		t.Errorf("candidate lacking an anchor should be down-weighted: %f >= %f",
			withAnchors[0].Score, noAnchors[0].Score)
	}
}

func TestFuse_UnkeptFacetDownweighted(t *testing.T) {
	kept := SourceList{
		Source: domain.SourceFacet, FacetID: "f1", Weight: 0.8, Kept: true,
		Candidates: []domain.Candidate{cand("k", "d1", "alpha")},
	}
	unkept := SourceList{
		Source: domain.SourceFacet, FacetID: "f2", Weight: 0.8, Kept: false,
		Candidates: []domain.Candidate{cand("u", "d2", "beta")},
	}

	out := Fuse([]SourceList{kept, unkept}, domain.Hints{}, defaultCfg())

	var keptScore, unkeptScore float64
	for _, c := range out {
		switch c.ID {
		case "k":
			keptScore = c.Score
		case "u":
			unkeptScore = c.Score
		}
	}
	if unkeptScore >= keptScore {
		t.Errorf("unkept-facet candidate should score below kept one: %f >= %f", unkeptScore, keptScore)
	}
}

func TestFuse_PerDocCap(t *testing.T) {
	var cands []domain.Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, cand(fmt.Sprintf("same-%d", i), "doc1", fmt.Sprintf("chunk %d text", i)))
	}
	cands = append(cands, cand("other", "doc2", "different document"))

	out := Fuse([]SourceList{lexList(cands...)}, domain.Hints{}, defaultCfg())

	perDoc := map[string]int{}
	for _, c := range out {
		perDoc[c.DocID]++
	}
	if perDoc["doc1"] > 2 {
		t.Errorf("doc1 has %d chunks, cap is 2", perDoc["doc1"])
	}
	if perDoc["doc2"] != 1 {
		t.Errorf("doc2 should still surface, got %d", perDoc["doc2"])
	}
}

func TestFuse_TopKCutoff(t *testing.T) {
	var cands []domain.Candidate
	for i := 0; i < 40; i++ {
		cands = append(cands, cand(fmt.Sprintf("c%02d", i), fmt.Sprintf("d%02d", i), fmt.Sprintf("content %d", i)))
	}

	cfg := defaultCfg()
	cfg.TopK = 12
	out := Fuse([]SourceList{lexList(cands...)}, domain.Hints{}, cfg)

	if len(out) != 12 {
		t.Errorf("got %d candidates, want top-K 12", len(out))
	}
}

func TestFuse_MMRDemotesRedundantContent(t *testing.T) {
	// Three near-duplicates ranked above one distinct candidate: after MMR
	// the distinct one must appear before the last duplicate.
	lists := []SourceList{lexList(
		cand("dup1", "d1", "solar panel efficiency rises in spring"),
		cand("dup2", "d2", "solar panel efficiency rises in spring again"),
		cand("dup3", "d3", "solar panel efficiency rises in early spring"),
		cand("novel", "d4", "grid storage batteries balance nighttime demand"),
	)}

	out := Fuse(lists, domain.Hints{}, defaultCfg())

	pos := map[string]int{}
	for i, c := range out {
		pos[c.ID] = i
	}
	if pos["novel"] > pos["dup3"] {
		t.Errorf("diversification should lift the novel candidate above the third duplicate: %v", pos)
	}
}

func TestFuse_EmptyInput(t *testing.T) {
	if out := Fuse(nil, domain.Hints{}, defaultCfg()); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}

func TestFuse_DeterministicTieBreak(t *testing.T) {
	// Two candidates with identical contribution: order must be stable by ID.
	lists := []SourceList{
		lexList(cand("b", "d1", "alpha")),
		denseList(cand("a", "d2", "beta")),
	}

	out := Fuse(lists, domain.Hints{}, defaultCfg())
	if out[0].ID != "a" {
		t.Errorf("tie should break by ID: got %s first", out[0].ID)
	}
}
