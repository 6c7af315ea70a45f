package fusegate

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	lexicalURL string
	denseURL   string
	searchKey  string

	lexical LexicalSearcher
	dense   DenseSearcher

	provider       string
	modelKey       string
	modelBaseURL   string
	rerankerModel  string
	entailerModel  string
	generatorModel string

	valkeyAddrs    []string
	valkeyPassword string
	scoreTTL       time.Duration

	topK         int
	rerankBudget int
	callTimeout  time.Duration
	cacheOff     bool

	logger *zap.Logger
}

// WithUpstream points the client at the lexical and dense index endpoints.
// apiKey may be empty for unauthenticated indexes.
func WithUpstream(lexicalURL, denseURL, apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.lexicalURL = lexicalURL
		c.denseURL = denseURL
		c.searchKey = apiKey
	})
}

// WithSearchers wires in-process search implementations instead of HTTP
// endpoints. Takes precedence over WithUpstream.
func WithSearchers(lexical LexicalSearcher, dense DenseSearcher) Option {
	return optionFunc(func(c *clientConfig) {
		c.lexical = lexical
		c.dense = dense
	})
}

// WithModels configures the model provider. Any of the three model names may
// be empty; a missing role abstains from evidence voting (or skips drafting).
func WithModels(provider, apiKey, baseURL, reranker, entailer, generator string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = provider
		c.modelKey = apiKey
		c.modelBaseURL = baseURL
		c.rerankerModel = reranker
		c.entailerModel = entailer
		c.generatorModel = generator
	})
}

// WithValkey backs the model score cache with a Valkey instance. Without it
// the cache is in-process memory.
func WithValkey(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.valkeyAddrs = []string{addr}
		c.valkeyPassword = password
		c.scoreTTL = ttl
	})
}

// WithTopK overrides the number of passages selected per query. Default: 12.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithRerankBudget caps reranker calls per query. Default: 50.
func WithRerankBudget(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.rerankBudget = n
	})
}

// WithCallTimeout bounds each upstream search call. Default: 5s.
func WithCallTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.callTimeout = d
	})
}

// WithoutScoreCache disables model score caching entirely.
func WithoutScoreCache() Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheOff = true
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
