package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/usecase/evidence"
	"github.com/kailas-cloud/fusegate/internal/usecase/facet"
	"github.com/kailas-cloud/fusegate/internal/usecase/fusion"
	"github.com/kailas-cloud/fusegate/internal/usecase/gate"
	"github.com/kailas-cloud/fusegate/internal/usecase/geometry"
	"github.com/kailas-cloud/fusegate/internal/usecase/queryparse"
	"github.com/kailas-cloud/fusegate/internal/usecase/segment"
)

// Probes builds the health-check probe set. Each probe exercises one pipeline
// component against a fixed synthetic input with a known answer, so a probe
// failure localizes the fault to that component.
func (s *Service) Probes() []gate.Probe {
	return []gate.Probe{
		{Component: "segmenter", Run: probeSegmenter},
		{Component: "query_parser", Run: probeQueryParser},
		{Component: "geometry_router", Run: s.probeGeometry},
		{Component: "facet_selector", Run: s.probeFacets},
		{Component: "fusion_engine", Run: s.probeFusion},
		{Component: "evidence_filter", Run: s.probeEvidence},
	}
}

func probeSegmenter(_ context.Context) error {
	seg := segment.New(nil)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	chunks, err := seg.Segment(text, domain.SegmentConfig{MaxTokens: 64, OverlapTokens: 8})
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("segmenter produced no chunks for %d bytes", len(text))
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c.Text)
	}
	if !strings.Contains(rebuilt.String(), "quick brown fox") {
		return fmt.Errorf("segmenter lost input text")
	}
	return nil
}

func probeQueryParser(_ context.Context) error {
	hints := queryparse.Parse("alpha and beta not gamma")
	if len(hints.Include) != 2 || len(hints.Exclude) != 1 {
		return fmt.Errorf("parser hints off: include=%d exclude=%d", len(hints.Include), len(hints.Exclude))
	}
	return nil
}

func (s *Service) probeGeometry(_ context.Context) error {
	// Ten tied scores have zero margin and maximal entropy, so a low
	// agreement must route to lexical.
	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 0.5
	}
	report := geometry.Route(flat, 0.1, s.cfg.Geometry)
	if !report.RouteToLexical {
		return fmt.Errorf("flat distribution not routed: margin=%.3f entropy=%.3f", report.Top1Margin, report.Entropy)
	}
	return nil
}

func (s *Service) probeFacets(_ context.Context) error {
	selected := facet.Select([]domain.Facet{
		{ID: "rich", NewDocCount: 10, EntityOverlap: 0.8},
		{ID: "barren", NewDocCount: 0, EntityOverlap: 0},
	}, s.cfg.Facet)
	if len(selected) != 2 {
		return fmt.Errorf("selector returned %d facets, want 2", len(selected))
	}
	if !selected[0].Keep {
		return fmt.Errorf("high-yield facet pruned, yield=%.2f", selected[0].YieldScore)
	}
	if selected[1].Keep {
		return fmt.Errorf("zero-yield facet kept, yield=%.2f", selected[1].YieldScore)
	}
	return nil
}

func (s *Service) probeFusion(_ context.Context) error {
	lists := []fusion.SourceList{
		{Source: domain.SourceLexical, Weight: 1, Kept: true, Candidates: []domain.Candidate{
			{ID: "a", DocID: "a", Content: "alpha"},
			{ID: "b", DocID: "b", Content: "beta"},
		}},
		{Source: domain.SourceDense, Weight: 1, Kept: true, Candidates: []domain.Candidate{
			{ID: "b", DocID: "b", Content: "beta"},
			{ID: "c", DocID: "c", Content: "gamma"},
		}},
	}
	fused := fusion.Fuse(lists, domain.Hints{}, s.cfg.Fusion)
	if len(fused) == 0 {
		return fmt.Errorf("fusion returned nothing")
	}
	if fused[0].ID != "b" {
		return fmt.Errorf("doubly ranked candidate not first, got %q", fused[0].ID)
	}
	return nil
}

func (s *Service) probeEvidence(ctx context.Context) error {
	// Self-supporting fixture: the sentence is its own snippet, so the two
	// lexical signals pass without any model call.
	cfg := s.cfg.Evidence
	cfg.RerankTopN = 0
	filter := evidence.New(nil, nil, nil)
	result := filter.Filter(ctx,
		"quarterly revenue growth",
		[]string{"quarterly revenue grew steadily"},
		[]string{"quarterly revenue grew steadily across regions"},
		cfg,
	)
	if len(result.Kept) != 1 {
		return fmt.Errorf("self-supported sentence dropped, votes=%+v", result.Votes)
	}
	return nil
}
