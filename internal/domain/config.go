package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the validated tuning surface of one pipeline instance.
// It is an explicit struct passed into the pipeline entry point; a candidate
// change to it is what the promotion gate evaluates.
type PipelineConfig struct {
	Fusion   FusionConfig   `json:"fusion" yaml:"fusion"`
	Evidence EvidenceConfig `json:"evidence" yaml:"evidence"`
	Geometry GeometryConfig `json:"geometry" yaml:"geometry"`
	Facet    FacetConfig    `json:"facet" yaml:"facet"`
	Segment  SegmentConfig  `json:"segment" yaml:"segment"`
	// RetrievalTopK is how many candidates each upstream signal is asked for.
	RetrievalTopK int `json:"retrieval_top_k" yaml:"retrieval_top_k"`
}

// FusionConfig tunes rank fusion and diversification.
type FusionConfig struct {
	RRFK                 int     `json:"rrf_k" yaml:"rrf_k"`
	LexicalWeight        float64 `json:"lexical_weight" yaml:"lexical_weight"`
	DenseWeight          float64 `json:"dense_weight" yaml:"dense_weight"`
	FacetWeight          float64 `json:"facet_weight" yaml:"facet_weight"`
	AnchorBoost          float64 `json:"anchor_boost" yaml:"anchor_boost"`
	MissingAnchorPenalty float64 `json:"missing_anchor_penalty" yaml:"missing_anchor_penalty"`
	MMRLambda            float64 `json:"mmr_lambda" yaml:"mmr_lambda"`
	PerDocCap            int     `json:"per_doc_cap" yaml:"per_doc_cap"`
	TopK                 int     `json:"top_k" yaml:"top_k"`
}

// EvidenceConfig tunes the evidence-gated filter.
type EvidenceConfig struct {
	JaccardFloor    float64 `json:"jaccard_floor" yaml:"jaccard_floor"`
	CoverageFloor   float64 `json:"coverage_floor" yaml:"coverage_floor"`
	RerankerFloor   float64 `json:"reranker_floor" yaml:"reranker_floor"`
	RerankTopN      int     `json:"rerank_top_n" yaml:"rerank_top_n"`
	EpsilonBand     float64 `json:"epsilon_band" yaml:"epsilon_band"`
	EntailmentFloor float64 `json:"entailment_floor" yaml:"entailment_floor"`
	StrictNumeric   bool    `json:"strict_numeric" yaml:"strict_numeric"`
	CacheEnabled    bool    `json:"cache_enabled" yaml:"cache_enabled"`
}

// GeometryConfig tunes the dense-geometry health router.
type GeometryConfig struct {
	MarginThreshold    float64 `json:"margin_threshold" yaml:"margin_threshold"`
	AgreementThreshold float64 `json:"agreement_threshold" yaml:"agreement_threshold"`
	EntropyThreshold   float64 `json:"entropy_threshold" yaml:"entropy_threshold"`
	MinScores          int     `json:"min_scores" yaml:"min_scores"`
}

// FacetConfig tunes facet yield selection.
type FacetConfig struct {
	DocsWeight    float64 `json:"docs_weight" yaml:"docs_weight"`
	OverlapWeight float64 `json:"overlap_weight" yaml:"overlap_weight"`
	MinYield      float64 `json:"min_yield" yaml:"min_yield"`
	MaxKeep       int     `json:"max_keep" yaml:"max_keep"`
}

// SegmentConfig tunes the token-bounded segmenter used at ingest.
type SegmentConfig struct {
	MaxTokens     int `json:"max_tokens" yaml:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens" yaml:"overlap_tokens"`
}

// DefaultPipelineConfig returns the conservative defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Fusion: FusionConfig{
			RRFK:                 60,
			LexicalWeight:        1.0,
			DenseWeight:          1.0,
			FacetWeight:          0.8,
			AnchorBoost:          1.5,
			MissingAnchorPenalty: 0.75,
			MMRLambda:            0.7,
			PerDocCap:            2,
			TopK:                 12,
		},
		Evidence: EvidenceConfig{
			JaccardFloor:    0.08,
			CoverageFloor:   0.22,
			RerankerFloor:   0.5,
			RerankTopN:      50,
			EpsilonBand:     0.02,
			EntailmentFloor: 0.60,
			CacheEnabled:    true,
		},
		Geometry: GeometryConfig{
			MarginThreshold:    0.20,
			AgreementThreshold: 0.50,
			EntropyThreshold:   2.0,
			MinScores:          10,
		},
		Facet: FacetConfig{
			DocsWeight:    0.6,
			OverlapWeight: 0.4,
			MinYield:      1.0,
			MaxKeep:       2,
		},
		Segment: SegmentConfig{
			MaxTokens:     256,
			OverlapTokens: 32,
		},
		RetrievalTopK: 50,
	}
}

// Validate rejects out-of-range values. All violations wrap ErrInvalidConfig.
func (c PipelineConfig) Validate() error {
	f := c.Fusion
	switch {
	case f.RRFK <= 0:
		return fmt.Errorf("%w: fusion.rrf_k must be positive, got %d", ErrInvalidConfig, f.RRFK)
	case f.LexicalWeight < 0 || f.DenseWeight < 0 || f.FacetWeight < 0:
		return fmt.Errorf("%w: fusion source weights must be non-negative", ErrInvalidConfig)
	case f.LexicalWeight == 0 && f.DenseWeight == 0 && f.FacetWeight == 0:
		return fmt.Errorf("%w: at least one fusion source weight must be positive", ErrInvalidConfig)
	case f.AnchorBoost < 1:
		return fmt.Errorf("%w: fusion.anchor_boost must be >= 1, got %g", ErrInvalidConfig, f.AnchorBoost)
	case f.MissingAnchorPenalty <= 0 || f.MissingAnchorPenalty > 1:
		return fmt.Errorf("%w: fusion.missing_anchor_penalty must be in (0,1], got %g",
			ErrInvalidConfig, f.MissingAnchorPenalty)
	case f.MMRLambda < 0 || f.MMRLambda > 1:
		return fmt.Errorf("%w: fusion.mmr_lambda must be in [0,1], got %g", ErrInvalidConfig, f.MMRLambda)
	case f.PerDocCap < 1:
		return fmt.Errorf("%w: fusion.per_doc_cap must be >= 1, got %d", ErrInvalidConfig, f.PerDocCap)
	case f.TopK < 1:
		return fmt.Errorf("%w: fusion.top_k must be >= 1, got %d", ErrInvalidConfig, f.TopK)
	}

	e := c.Evidence
	switch {
	case e.JaccardFloor < 0 || e.JaccardFloor > 1:
		return fmt.Errorf("%w: evidence.jaccard_floor must be in [0,1], got %g", ErrInvalidConfig, e.JaccardFloor)
	case e.CoverageFloor < 0 || e.CoverageFloor > 1:
		return fmt.Errorf("%w: evidence.coverage_floor must be in [0,1], got %g", ErrInvalidConfig, e.CoverageFloor)
	case e.RerankerFloor < 0 || e.RerankerFloor > 1:
		return fmt.Errorf("%w: evidence.reranker_floor must be in [0,1], got %g", ErrInvalidConfig, e.RerankerFloor)
	case e.RerankTopN < 0:
		return fmt.Errorf("%w: evidence.rerank_top_n must be non-negative, got %d", ErrInvalidConfig, e.RerankTopN)
	case e.EpsilonBand < 0:
		return fmt.Errorf("%w: evidence.epsilon_band must be non-negative, got %g", ErrInvalidConfig, e.EpsilonBand)
	case e.EntailmentFloor < 0 || e.EntailmentFloor > 1:
		return fmt.Errorf("%w: evidence.entailment_floor must be in [0,1], got %g",
			ErrInvalidConfig, e.EntailmentFloor)
	}

	g := c.Geometry
	switch {
	case g.MarginThreshold < 0:
		return fmt.Errorf("%w: geometry.margin_threshold must be non-negative, got %g",
			ErrInvalidConfig, g.MarginThreshold)
	case g.AgreementThreshold < 0 || g.AgreementThreshold > 1:
		return fmt.Errorf("%w: geometry.agreement_threshold must be in [0,1], got %g",
			ErrInvalidConfig, g.AgreementThreshold)
	case g.EntropyThreshold < 0:
		return fmt.Errorf("%w: geometry.entropy_threshold must be non-negative, got %g",
			ErrInvalidConfig, g.EntropyThreshold)
	case g.MinScores < 2:
		return fmt.Errorf("%w: geometry.min_scores must be >= 2, got %d", ErrInvalidConfig, g.MinScores)
	}

	fc := c.Facet
	switch {
	case fc.DocsWeight < 0 || fc.OverlapWeight < 0:
		return fmt.Errorf("%w: facet weights must be non-negative", ErrInvalidConfig)
	case fc.MaxKeep < 1:
		return fmt.Errorf("%w: facet.max_keep must be >= 1, got %d", ErrInvalidConfig, fc.MaxKeep)
	}

	s := c.Segment
	switch {
	case s.MaxTokens <= 0:
		return fmt.Errorf("%w: segment.max_tokens must be positive, got %d", ErrInvalidConfig, s.MaxTokens)
	case s.OverlapTokens < 0:
		return fmt.Errorf("%w: segment.overlap_tokens must be non-negative, got %d",
			ErrInvalidConfig, s.OverlapTokens)
	case s.OverlapTokens >= s.MaxTokens:
		return fmt.Errorf("%w: segment.overlap_tokens (%d) must be smaller than segment.max_tokens (%d)",
			ErrInvalidConfig, s.OverlapTokens, s.MaxTokens)
	}

	if c.RetrievalTopK < 1 {
		return fmt.Errorf("%w: retrieval_top_k must be >= 1, got %d", ErrInvalidConfig, c.RetrievalTopK)
	}

	return nil
}

// Hash returns a stable identifier for this configuration, used by
// promotion decisions.
func (c PipelineConfig) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		// yaml.Marshal on a plain struct cannot fail at runtime.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
