// Package facet prunes low-yield query rewrites before they consume
// retrieval budget. Yield is a cheap proxy for "will this rewrite surface
// materially different, relevant documents" without a full evaluation pass.
package facet

import (
	"sort"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Select scores every facet and marks which ones to keep.
//
// yield = docs_weight * new_doc_count + overlap_weight * entity_overlap.
// A facet is kept when its yield reaches min_yield, and at most max_keep
// facets survive regardless of yield, preferring the highest-yield ones.
// The input order is preserved in the returned slice.
func Select(facets []domain.Facet, cfg domain.FacetConfig) []domain.Facet {
	if len(facets) == 0 {
		return nil
	}

	out := make([]domain.Facet, len(facets))
	copy(out, facets)

	for i := range out {
		out[i].YieldScore = cfg.DocsWeight*float64(out[i].NewDocCount) +
			cfg.OverlapWeight*out[i].EntityOverlap
		out[i].Keep = out[i].YieldScore >= cfg.MinYield
	}

	// Hard cap on fan-out: keep only the top max_keep by yield.
	kept := make([]int, 0, len(out))
	for i := range out {
		if out[i].Keep {
			kept = append(kept, i)
		}
	}
	if len(kept) > cfg.MaxKeep {
		sort.SliceStable(kept, func(a, b int) bool {
			return out[kept[a]].YieldScore > out[kept[b]].YieldScore
		})
		for _, idx := range kept[cfg.MaxKeep:] {
			out[idx].Keep = false
		}
	}

	return out
}

// Kept returns only the facets marked keep, in input order.
func Kept(facets []domain.Facet) []domain.Facet {
	var kept []domain.Facet
	for _, f := range facets {
		if f.Keep {
			kept = append(kept, f)
		}
	}
	return kept
}
