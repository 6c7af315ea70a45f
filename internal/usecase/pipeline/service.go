// Package pipeline orchestrates one query through parsing, routed hybrid
// retrieval, facet pruning, fusion, and evidence gating.
//
// Stages are pure given their inputs; the only shared mutable state (score
// cache, rolling metrics) lives behind the collaborators, so queries run
// fully in parallel.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/logger"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/usecase/evidence"
	"github.com/kailas-cloud/fusegate/internal/usecase/facet"
	"github.com/kailas-cloud/fusegate/internal/usecase/fusion"
	"github.com/kailas-cloud/fusegate/internal/usecase/geometry"
	"github.com/kailas-cloud/fusegate/internal/usecase/queryparse"
)

// maxFacetFanout bounds concurrent facet retrievals per query.
const maxFacetFanout = 2

// Recorder receives completed-query samples for the rolling metrics window.
type Recorder interface {
	RecordQuery(latency time.Duration, failed bool)
}

// Service wires the pipeline stages behind the run_pipeline entry point.
type Service struct {
	lexical     domain.LexicalSearcher
	dense       domain.DenseSearcher
	generator   domain.Generator
	filter      *evidence.Filter
	recorder    Recorder
	cfg         domain.PipelineConfig
	callTimeout time.Duration
}

// New creates the pipeline service. generator and recorder may be nil.
// The configuration is validated once here; an invalid one is rejected
// before any query runs.
func New(
	lexical domain.LexicalSearcher,
	dense domain.DenseSearcher,
	generator domain.Generator,
	filter *evidence.Filter,
	recorder Recorder,
	cfg domain.PipelineConfig,
	callTimeout time.Duration,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Service{
		lexical:     lexical,
		dense:       dense,
		generator:   generator,
		filter:      filter,
		recorder:    recorder,
		cfg:         cfg,
		callTimeout: callTimeout,
	}, nil
}

// Config returns the active pipeline configuration.
func (s *Service) Config() domain.PipelineConfig { return s.cfg }

// Request is one run_pipeline invocation.
type Request struct {
	Query string
	// Facets are query rewrites generated upstream; may be empty.
	Facets []domain.Facet
	// RewriteAgreement in [0,1]; when negative it is derived from the
	// facets' entity overlap.
	RewriteAgreement float64
	// Sentences are pre-drafted answer sentences to gate. When empty and a
	// generator is wired, sentences are drafted from the selected passages.
	Sentences []string
	// TopK truncates the selected passages below the configured fusion
	// top-K; zero or larger values keep the configured cut.
	TopK int
}

// Result is the pipeline outcome for one query. A degraded query still
// carries a best-effort answer; Degraded lists the lost signals.
type Result struct {
	RunID                string                `json:"run_id"`
	Passages             []domain.Candidate    `json:"selected_passages"`
	KeptSentences        []string              `json:"kept_sentences"`
	Votes                []domain.EvidenceVote `json:"votes,omitempty"`
	Geometry             domain.GeometryReport `json:"geometry"`
	Facets               []domain.Facet        `json:"facets,omitempty"`
	Degraded             []string              `json:"degraded,omitempty"`
	InsufficientEvidence bool                  `json:"insufficient_evidence"`
}

// Run executes the pipeline for one query. Empty input is not an error: an
// empty query yields an empty result. Component-local upstream failures
// degrade the result instead of aborting it.
func (s *Service) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	result := Result{RunID: uuid.NewString()}
	log := logger.FromContext(ctx).With(zap.String("run_id", result.RunID))

	if req.Query == "" {
		return result
	}

	hints := queryparse.Parse(req.Query)

	// Lexical and dense retrieval issue concurrently; a failed side yields
	// an empty list and a degraded marker, never a query failure.
	var lexCands, denseCands []domain.Candidate
	var lexErr, denseErr error

	retrievalStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexCands, lexErr = s.searchLexical(gctx, req.Query, hints)
		return nil
	})
	g.Go(func() error {
		denseCands, denseErr = s.searchDense(gctx, req.Query)
		return nil
	})
	_ = g.Wait()
	metrics.PipelineStageDuration.WithLabelValues("retrieval").Observe(time.Since(retrievalStart).Seconds())

	if lexErr != nil {
		result.Degraded = append(result.Degraded, "lexical")
		logUpstream(log, "lexical", lexErr)
	}
	if denseErr != nil {
		result.Degraded = append(result.Degraded, "dense")
		logUpstream(log, "dense", denseErr)
	}

	// Geometry routing decides whether dense ranks are trustworthy.
	agreement := req.RewriteAgreement
	if agreement < 0 {
		agreement = derivedAgreement(req.Facets)
	}
	result.Geometry = geometry.Route(denseScores(denseCands), agreement, s.cfg.Geometry)
	result.Geometry.Partial = denseErr != nil

	// Facet selection and bounded fan-out retrieval.
	result.Facets = facet.Select(req.Facets, s.cfg.Facet)
	facetLists := s.searchFacets(ctx, result.Facets, &result, log)

	lists := make([]fusion.SourceList, 0, 2+len(facetLists))
	lists = append(lists, fusion.SourceList{
		Source: domain.SourceLexical, Weight: s.cfg.Fusion.LexicalWeight, Kept: true, Candidates: lexCands,
	})
	if !result.Geometry.RouteToLexical {
		lists = append(lists, fusion.SourceList{
			Source: domain.SourceDense, Weight: s.cfg.Fusion.DenseWeight, Kept: true, Candidates: denseCands,
		})
	}
	lists = append(lists, facetLists...)

	fusionStart := time.Now()
	result.Passages = fusion.Fuse(lists, hints, s.cfg.Fusion)
	if req.TopK > 0 && req.TopK < len(result.Passages) {
		result.Passages = result.Passages[:req.TopK]
	}
	metrics.PipelineStageDuration.WithLabelValues("fusion").Observe(time.Since(fusionStart).Seconds())

	sentences := req.Sentences
	if len(sentences) == 0 && s.generator != nil && len(result.Passages) > 0 {
		var err error
		sentences, err = s.generateSentences(ctx, req.Query, result.Passages)
		if err != nil {
			result.Degraded = append(result.Degraded, "generator")
			logUpstream(log, "generator", err)
		}
	}

	if len(sentences) > 0 {
		snippets := make([]string, len(result.Passages))
		for i, p := range result.Passages {
			snippets[i] = p.Content
		}
		evidenceStart := time.Now()
		gated := s.filter.Filter(ctx, req.Query, sentences, snippets, s.cfg.Evidence)
		metrics.PipelineStageDuration.WithLabelValues("evidence").Observe(time.Since(evidenceStart).Seconds())
		result.KeptSentences = gated.Kept
		result.Votes = gated.Votes
		if gated.Partial {
			result.Degraded = append(result.Degraded, "evidence")
		}
		result.InsufficientEvidence = len(gated.Kept) == 0
	}

	for _, signal := range result.Degraded {
		// Facet ids would blow up label cardinality.
		if strings.HasPrefix(signal, "facet:") {
			signal = "facet"
		}
		metrics.DegradedSignalsTotal.WithLabelValues(signal).Inc()
	}

	if s.recorder != nil {
		failed := lexErr != nil && denseErr != nil
		s.recorder.RecordQuery(time.Since(start), failed)
	}

	log.Info("pipeline_run",
		zap.Int("passages", len(result.Passages)),
		zap.Int("kept_sentences", len(result.KeptSentences)),
		zap.Bool("route_to_lexical", result.Geometry.RouteToLexical),
		zap.Strings("degraded", result.Degraded),
		zap.Duration("latency", time.Since(start)),
	)
	return result
}

func (s *Service) searchLexical(ctx context.Context, query string, hints domain.Hints) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	cands, err := s.lexical.SearchLexical(ctx, query, hints, s.cfg.RetrievalTopK)
	return cands, classifyUpstream(err)
}

func (s *Service) searchDense(ctx context.Context, query string) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	cands, err := s.dense.SearchDense(ctx, query, s.cfg.RetrievalTopK)
	return cands, classifyUpstream(err)
}

// searchFacets retrieves candidates for every kept facet with bounded
// concurrency. A single facet's failure degrades only that facet.
func (s *Service) searchFacets(
	ctx context.Context, facets []domain.Facet, result *Result, log *zap.Logger,
) []fusion.SourceList {
	kept := facet.Kept(facets)
	if len(kept) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(maxFacetFanout)
	lists := make([]fusion.SourceList, len(kept))
	errs := make([]error, len(kept))
	var g errgroup.Group
	for i, f := range kept {
		i, f := i, f
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
			defer cancel()

			hints := queryparse.Parse(f.RewrittenQuery)
			cands, err := s.lexical.SearchLexical(callCtx, f.RewrittenQuery, hints, s.cfg.RetrievalTopK)
			if err != nil {
				errs[i] = classifyUpstream(err)
				return nil
			}
			for j := range cands {
				cands[j].Source = domain.SourceFacet
				cands[j].FacetID = f.ID
			}
			lists[i] = fusion.SourceList{
				Source: domain.SourceFacet, FacetID: f.ID,
				Weight: s.cfg.Fusion.FacetWeight, Kept: true, Candidates: cands,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]fusion.SourceList, 0, len(kept))
	for i, l := range lists {
		if errs[i] != nil {
			result.Degraded = append(result.Degraded, "facet:"+kept[i].ID)
			logUpstream(log, "facet:"+kept[i].ID, errs[i])
			continue
		}
		if len(l.Candidates) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func (s *Service) generateSentences(
	ctx context.Context, query string, passages []domain.Candidate,
) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	sentences, err := s.generator.Generate(ctx, query, passages)
	return sentences, classifyUpstream(err)
}

// classifyUpstream maps raw upstream errors onto the recoverable taxonomy.
func classifyUpstream(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrUpstreamTimeout
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, domain.ErrUpstreamUnavailable):
		return err
	default:
		return domain.ErrUpstreamUnavailable
	}
}

// logUpstream logs timeouts at warn and availability failures at error, so
// the latter stand out in health triage.
func logUpstream(log *zap.Logger, signal string, err error) {
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		log.Warn("upstream signal timed out", zap.String("signal", signal), zap.Error(err))
		return
	}
	log.Error("upstream signal unavailable", zap.String("signal", signal), zap.Error(err))
}

func denseScores(cands []domain.Candidate) []float64 {
	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.Score
	}
	return scores
}

// derivedAgreement estimates rewrite agreement as the mean entity overlap of
// the rewrites when the caller did not measure it.
func derivedAgreement(facets []domain.Facet) float64 {
	if len(facets) == 0 {
		return 1 // no rewrites to disagree
	}
	var sum float64
	for _, f := range facets {
		sum += f.EntityOverlap
	}
	return sum / float64(len(facets))
}
