// Package evidence gates draft answer sentences against retrieved evidence.
// Each sentence collects independent support signals and survives only on a
// two-of-three quorum, with numeric/entity literal matching and an NLI
// tie-breaker for borderline cases.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/logger"
	"github.com/kailas-cloud/fusegate/internal/textutil"
)

// Cache stores expensive model scores keyed by a stable request hash.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, score float64)
}

// Filter applies evidence gating. Reranker, entailer, and cache are all
// optional; a missing signal abstains from the quorum instead of voting.
type Filter struct {
	reranker domain.Reranker
	entailer domain.Entailer
	cache    Cache
}

// New creates a filter. Any of the collaborators may be nil.
func New(reranker domain.Reranker, entailer domain.Entailer, cache Cache) *Filter {
	return &Filter{reranker: reranker, entailer: entailer, cache: cache}
}

// Result carries the kept sentences and the per-sentence votes.
type Result struct {
	Kept  []string
	Votes []domain.EvidenceVote
	// Partial is true when at least one optional signal was unavailable.
	Partial bool
}

// Filter gates sentences against evidence snippets, preserving input order.
// An empty sentence or evidence list is not an error: it yields an empty
// result.
func (f *Filter) Filter(
	ctx context.Context, query string, sentences, evidence []string, cfg domain.EvidenceConfig,
) Result {
	var res Result
	if len(sentences) == 0 {
		return res
	}

	log := logger.FromContext(ctx)
	rerankBudget := cfg.RerankTopN

	for _, sentence := range sentences {
		vote := domain.EvidenceVote{Sentence: sentence}

		snippet := bestSnippet(sentence, evidence)
		if snippet != "" {
			vote.Jaccard = textutil.Jaccard(sentence, snippet)
			vote.Coverage = textutil.Coverage(sentence, snippet)
		}

		lexPass := vote.Jaccard >= cfg.JaccardFloor
		covPass := vote.Coverage >= cfg.CoverageFloor

		var rerankFailed bool
		vote.Reranker, rerankBudget, rerankFailed = f.rerankSignal(ctx, query, sentence, cfg, rerankBudget)
		vote.Partial = rerankFailed

		vote.Votes = countVotes(lexPass, covPass, vote.Reranker)
		vote.Kept = vote.Votes >= 2

		// Literal grounding for numbers and named entities.
		vote.NumericEntityOK = checkLiterals(sentence, snippet, evidence, cfg.StrictNumeric)
		if !vote.NumericEntityOK {
			vote.Kept = false
		}

		// NLI tie-breaker, only for sentences sitting in the epsilon band
		// around a decision floor.
		if vote.NumericEntityOK && inEpsilonBand(vote, cfg) {
			vote.Entailment = f.entailSignal(ctx, snippet, sentence, cfg)
			if vote.Entailment.Evaluated {
				vote.Kept = vote.Entailment.Pass
			} else if f.entailer != nil {
				vote.Partial = true
			}
		}

		if vote.Partial {
			res.Partial = true
			log.Debug("evidence vote taken with partial signals",
				zap.String("sentence", sentence),
				zap.Int("votes", vote.Votes),
			)
		}

		res.Votes = append(res.Votes, vote)
		if vote.Kept {
			res.Kept = append(res.Kept, sentence)
		}
	}

	return res
}

// rerankSignal computes the cross-encoder signal for one sentence, consuming
// one unit of the top-N model-call budget on a cache miss. A nil reranker or
// an exhausted budget abstains silently; an upstream failure abstains and is
// reported so the vote can be marked partial.
func (f *Filter) rerankSignal(
	ctx context.Context, query, sentence string, cfg domain.EvidenceConfig, budget int,
) (sig domain.Signal, left int, failed bool) {
	if f.reranker == nil {
		return domain.Signal{}, budget, false
	}

	key := scoreKey("rerank", query, sentence)
	if cfg.CacheEnabled && f.cache != nil {
		if score, ok := f.cache.Get(ctx, key); ok {
			return domain.Signal{Evaluated: true, Pass: score >= cfg.RerankerFloor, Score: score}, budget, false
		}
	}

	if budget <= 0 {
		return domain.Signal{}, budget, false
	}

	score, err := f.reranker.Rerank(ctx, query, sentence)
	if err != nil {
		logger.FromContext(ctx).Warn("reranker unavailable, signal abstains", zap.Error(err))
		return domain.Signal{}, budget - 1, true
	}
	if cfg.CacheEnabled && f.cache != nil {
		f.cache.Set(ctx, key, score)
	}
	return domain.Signal{Evaluated: true, Pass: score >= cfg.RerankerFloor, Score: score}, budget - 1, false
}

// entailSignal scores premise/hypothesis entailment, cached like reranking.
func (f *Filter) entailSignal(
	ctx context.Context, premise, hypothesis string, cfg domain.EvidenceConfig,
) domain.Signal {
	if f.entailer == nil || premise == "" {
		return domain.Signal{}
	}

	key := scoreKey("entail", premise, hypothesis)
	if cfg.CacheEnabled && f.cache != nil {
		if score, ok := f.cache.Get(ctx, key); ok {
			return domain.Signal{Evaluated: true, Pass: score >= cfg.EntailmentFloor, Score: score}
		}
	}

	score, err := f.entailer.Entail(ctx, premise, hypothesis)
	if err != nil {
		logger.FromContext(ctx).Warn("entailment unavailable, signal abstains", zap.Error(err))
		return domain.Signal{}
	}
	if cfg.CacheEnabled && f.cache != nil {
		f.cache.Set(ctx, key, score)
	}
	return domain.Signal{Evaluated: true, Pass: score >= cfg.EntailmentFloor, Score: score}
}

// countVotes applies the two-of-three quorum over the evaluated signals.
func countVotes(lexPass, covPass bool, reranker domain.Signal) int {
	votes := 0
	if lexPass {
		votes++
	}
	if covPass {
		votes++
	}
	if reranker.Evaluated && reranker.Pass {
		votes++
	}
	return votes
}

// inEpsilonBand reports whether either base signal sits within the epsilon
// band around its floor, where the quorum outcome is least trustworthy.
func inEpsilonBand(vote domain.EvidenceVote, cfg domain.EvidenceConfig) bool {
	return abs(vote.Jaccard-cfg.JaccardFloor) < cfg.EpsilonBand ||
		abs(vote.Coverage-cfg.CoverageFloor) < cfg.EpsilonBand
}

// bestSnippet picks the evidence snippet with the highest token overlap.
func bestSnippet(sentence string, evidence []string) string {
	best := ""
	bestOverlap := -1.0
	for _, snippet := range evidence {
		if overlap := textutil.Coverage(sentence, snippet); overlap > bestOverlap {
			best = snippet
			bestOverlap = overlap
		}
	}
	return best
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*%?`)

// checkLiterals verifies that every number and named entity in the sentence
// literally appears in the evidence. Strict mode requires at least two
// distinct supporting snippets per literal.
func checkLiterals(sentence, snippet string, evidence []string, strict bool) bool {
	literals := numberPattern.FindAllString(sentence, -1)
	literals = append(literals, namedEntities(sentence)...)
	if len(literals) == 0 {
		return true
	}

	for _, lit := range literals {
		if strict {
			if supportingSpans(lit, evidence) < 2 {
				return false
			}
			continue
		}
		if !containsFold(snippet, lit) && supportingSpans(lit, evidence) == 0 {
			return false
		}
	}
	return true
}

func supportingSpans(literal string, evidence []string) int {
	count := 0
	for _, snippet := range evidence {
		if containsFold(snippet, literal) {
			count++
		}
	}
	return count
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// namedEntities extracts capitalized tokens beyond the sentence start as a
// cheap named-entity proxy.
func namedEntities(sentence string) []string {
	var entities []string
	for i, tok := range strings.Fields(sentence) {
		if i == 0 {
			continue
		}
		trimmed := strings.Trim(tok, `.,;:!?"'()[]{}`)
		runes := []rune(trimmed)
		if len(runes) > 1 && unicode.IsUpper(runes[0]) && !allUpper(runes) {
			entities = append(entities, trimmed)
		}
	}
	return entities
}

func allUpper(runes []rune) bool {
	for _, r := range runes {
		if unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func scoreKey(kind, a, b string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + a + "\x00" + b))
	return hex.EncodeToString(h[:])
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
