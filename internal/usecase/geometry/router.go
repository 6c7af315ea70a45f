// Package geometry inspects the dense score distribution and decides whether
// dense ranking is trustworthy for the current query. A flat, high-entropy
// distribution (embedding space collapse) means dense ranks would hurt
// precision and lexical signal should dominate.
package geometry

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

const marginEpsilon = 1e-9

// topWindow is how many leading scores feed the margin statistic.
const topWindow = 10

// Route computes a GeometryReport from the dense score list and the
// agreement among query rewrites.
//
// Routing to lexical requires all three conditions at once: a small top-1
// margin, low rewrite agreement, and high score entropy. Requiring all three
// avoids false-positive routing on a merely small candidate set.
func Route(denseScores []float64, rewriteAgreement float64, cfg domain.GeometryConfig) domain.GeometryReport {
	report := domain.GeometryReport{RewriteAgreement: rewriteAgreement}

	if len(denseScores) < cfg.MinScores {
		// Too few scores for a meaningful signal: neutral report, do not route.
		return report
	}

	sorted := make([]float64, len(denseScores))
	copy(sorted, denseScores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	window := sorted
	if len(window) > topWindow {
		window = window[:topWindow]
	}

	median, err := stats.Median(window)
	if err != nil {
		return report
	}
	stdev, err := stats.StdDevP(window)
	if err != nil {
		return report
	}

	report.Top1Margin = (sorted[0] - median) / (stdev + marginEpsilon)
	report.Entropy = scoreEntropy(sorted)

	report.RouteToLexical = report.Top1Margin < cfg.MarginThreshold &&
		rewriteAgreement < cfg.AgreementThreshold &&
		report.Entropy > cfg.EntropyThreshold

	return report
}

// scoreEntropy is the Shannon entropy in bits of the score distribution.
// Non-positive scores are dropped before normalization.
func scoreEntropy(scores []float64) float64 {
	var sum float64
	positive := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s > 0 {
			positive = append(positive, s)
			sum += s
		}
	}
	if len(positive) == 0 || sum == 0 {
		return 0
	}
	for i := range positive {
		positive[i] /= sum
	}
	return stat.Entropy(positive) / math.Ln2
}
