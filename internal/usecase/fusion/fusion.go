// Package fusion merges ranked candidate lists from independent retrieval
// signals into one ranking, then diversifies and caps the result.
//
// The whole stage is a pure function of its inputs: identical inputs produce
// identical output ordering and scores, which supports caching and testing.
package fusion

import (
	"sort"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/textutil"
	"github.com/kailas-cloud/fusegate/internal/usecase/queryparse"
)

// SourceList is one ranked list entering fusion with its source weight.
type SourceList struct {
	Source domain.Source
	// FacetID identifies the rewrite when Source == SourceFacet.
	FacetID string
	Weight  float64
	// Kept is false for lists retrieved for a facet the selector pruned;
	// their candidates are down-weighted, not discarded.
	Kept       bool
	Candidates []domain.Candidate
}

// Fuse runs weighted reciprocal-rank fusion across the source lists, applies
// anchor boosts and penalties, then diversifies via maximal marginal
// relevance and enforces the per-document cap and global top-K cutoff.
func Fuse(lists []SourceList, hints domain.Hints, cfg domain.FusionConfig) []domain.Candidate {
	type scored struct {
		cand        domain.Candidate
		score       float64
		unkeptFacet bool
	}

	merged := make(map[string]*scored)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, c := range list.Candidates {
			contribution := list.Weight / float64(cfg.RRFK+rank+1)
			s, ok := merged[c.ID]
			if !ok {
				c.HasAnchor = queryparse.ContainsAnchor(c.Content, hints)
				s = &scored{cand: c}
				merged[c.ID] = s
				order = append(order, c.ID)
			}
			s.score += contribution
			if list.Source == domain.SourceFacet && !list.Kept {
				s.unkeptFacet = true
			}
		}
	}

	if len(merged) == 0 {
		return nil
	}

	fused := make([]domain.Candidate, 0, len(merged))
	for _, id := range order {
		s := merged[id]
		score := s.score
		if s.cand.HasAnchor {
			score *= cfg.AnchorBoost
		} else if hints.HasAnchors() {
			score *= cfg.MissingAnchorPenalty
		}
		if s.unkeptFacet {
			score *= cfg.MissingAnchorPenalty
		}
		c := s.cand
		c.Score = score
		fused = append(fused, c)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	return diversify(fused, cfg)
}

// diversify reorders the fused ranking with maximal marginal relevance:
// each step picks the remaining candidate maximizing
// lambda*relevance - (1-lambda)*max_similarity_to_picked, where similarity is
// lexical token overlap, not a second embedding call. The per-document cap
// and top-K cutoff are enforced during selection.
func diversify(fused []domain.Candidate, cfg domain.FusionConfig) []domain.Candidate {
	maxScore := fused[0].Score
	if maxScore <= 0 {
		maxScore = 1
	}

	picked := make([]domain.Candidate, 0, cfg.TopK)
	perDoc := make(map[string]int)
	remaining := make([]domain.Candidate, len(fused))
	copy(remaining, fused)
	// maxSim[i] tracks candidate i's highest similarity to any picked candidate.
	maxSim := make([]float64, len(remaining))

	for len(picked) < cfg.TopK && len(remaining) > 0 {
		best := -1
		bestVal := 0.0
		for i, c := range remaining {
			if perDoc[c.DocID] >= cfg.PerDocCap {
				continue
			}
			val := cfg.MMRLambda*(c.Score/maxScore) - (1-cfg.MMRLambda)*maxSim[i]
			if best == -1 || val > bestVal {
				best = i
				bestVal = val
			}
		}
		if best == -1 {
			break
		}

		chosen := remaining[best]
		picked = append(picked, chosen)
		perDoc[chosen.DocID]++

		remaining = append(remaining[:best], remaining[best+1:]...)
		maxSim = append(maxSim[:best], maxSim[best+1:]...)
		for i, c := range remaining {
			if sim := textutil.Jaccard(chosen.Content, c.Content); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return picked
}
