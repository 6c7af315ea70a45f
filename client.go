// Package fusegate is the embedded client for the retrieval pipeline: it
// wires the fusion, evidence, and gate services in-process, without the
// HTTP server.
package fusegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/db"
	dbValkey "github.com/kailas-cloud/fusegate/internal/db/valkey"
	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/repository/scorecache"
	"github.com/kailas-cloud/fusegate/internal/resilience"
	openaiModels "github.com/kailas-cloud/fusegate/internal/transport/openai"
	searchTransport "github.com/kailas-cloud/fusegate/internal/transport/search"
	"github.com/kailas-cloud/fusegate/internal/usecase/evidence"
	"github.com/kailas-cloud/fusegate/internal/usecase/gate"
	"github.com/kailas-cloud/fusegate/internal/usecase/pipeline"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the fusegate SDK entry point.
type Client struct {
	store   db.Store
	pipe    *pipeline.Service
	gateSvc *gate.Service
}

// New creates a fusegate Client. Search backends are required, either as
// HTTP endpoints (WithUpstream) or in-process implementations
// (WithSearchers).
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	lexical, dense, err := buildSearchers(cfg)
	if err != nil {
		return nil, err
	}

	store, cache, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}

	reranker, entailer, generator := buildModels(cfg)

	pipeCfg := domain.DefaultPipelineConfig()
	if cfg.topK > 0 {
		pipeCfg.Fusion.TopK = cfg.topK
	}
	if cfg.rerankBudget > 0 {
		pipeCfg.Evidence.RerankTopN = cfg.rerankBudget
	}

	gateSvc := gate.New(nil, 0, 0, gate.DefaultFloors(), nil, cfg.logger)

	pipe, err := pipeline.New(
		lexical,
		dense,
		generator,
		evidence.New(reranker, entailer, cache),
		gateSvc,
		pipeCfg,
		cfg.callTimeout,
	)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("fusegate: %w", err)
	}
	gateSvc.WithProbes(pipe.Probes())

	return &Client{store: store, pipe: pipe, gateSvc: gateSvc}, nil
}

// Run executes the pipeline for one query.
func (c *Client) Run(ctx context.Context, q Query) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := c.pipe.Run(ctx, pipeline.Request{
		Query:            q.Text,
		Facets:           toFacets(q.Facets),
		RewriteAgreement: -1,
		Sentences:        q.Sentences,
	})
	return toResult(res), nil
}

// Health runs a probe cycle over the pipeline components and returns the
// worst component status.
func (c *Client) Health(ctx context.Context) (string, error) {
	report := c.gateSvc.Check(ctx)
	if report.Status == domain.ProbeUnhealthy {
		return string(report.Status), errors.New("fusegate: pipeline unhealthy")
	}
	return string(report.Status), nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

func buildSearchers(cfg *clientConfig) (domain.LexicalSearcher, domain.DenseSearcher, error) {
	if cfg.lexical != nil && cfg.dense != nil {
		return &lexicalAdapter{inner: cfg.lexical}, &denseAdapter{inner: cfg.dense}, nil
	}
	if cfg.lexicalURL == "" || cfg.denseURL == "" {
		return nil, nil, errors.New(
			"fusegate: search backends required (use WithUpstream or WithSearchers)",
		)
	}
	client := searchTransport.NewClient(searchTransport.Config{
		LexicalURL: cfg.lexicalURL,
		DenseURL:   cfg.denseURL,
		APIKey:     cfg.searchKey,
		Timeout:    cfg.callTimeout,
	})
	return client, client, nil
}

func buildCache(cfg *clientConfig) (db.Store, evidence.Cache, error) {
	if cfg.cacheOff {
		return nil, nil, nil
	}
	if len(cfg.valkeyAddrs) == 0 {
		return nil, scorecache.NewMemory(), nil
	}

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.valkeyAddrs,
		Password: cfg.valkeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fusegate: create valkey store: %w", err)
	}
	if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("fusegate: database not ready: %w", err)
	}
	return store, scorecache.NewValkey(store, cfg.scoreTTL, nil, cfg.logger), nil
}

func buildModels(cfg *clientConfig) (domain.Reranker, domain.Entailer, domain.Generator) {
	if cfg.modelKey == "" {
		return nil, nil, nil
	}
	exec := resilience.NewExecutor(resilience.Config{}, cfg.logger)
	role := func(model string) *openaiModels.Config {
		return &openaiModels.Config{
			APIKey:   cfg.modelKey,
			BaseURL:  cfg.modelBaseURL,
			Model:    model,
			Provider: cfg.provider,
			Logger:   cfg.logger,
		}
	}

	var reranker domain.Reranker
	if cfg.rerankerModel != "" {
		reranker = openaiModels.NewReranker(role(cfg.rerankerModel), exec)
	}
	var entailer domain.Entailer
	if cfg.entailerModel != "" {
		entailer = openaiModels.NewEntailer(role(cfg.entailerModel), exec)
	}
	var generator domain.Generator
	if cfg.generatorModel != "" {
		generator = openaiModels.NewGenerator(role(cfg.generatorModel), exec)
	}
	return reranker, entailer, generator
}
