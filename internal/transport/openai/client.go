// Package openai adapts an OpenAI-compatible chat API (e.g. Nebius) to the
// reranker, entailer, and generator ports. Each adapter shares the rate
// limiter and resilience executor wired in main.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/metrics"
)

// Config holds the model provider settings shared by the adapters.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	User     string
	// RequestsPerSecond caps outgoing provider calls; 0 disables limiting.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// Executor runs a provider call under retry and circuit breaking.
type Executor interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error) error
}

// passthroughExecutor is used when no resilience executor is wired.
type passthroughExecutor struct{}

func (passthroughExecutor) Execute(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type client struct {
	api      *openai.Client
	model    string
	provider string
	user     string
	limiter  *rate.Limiter
	exec     Executor
	logger   *zap.Logger
}

func newClient(cfg *Config, exec Executor) *client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if exec == nil {
		exec = passthroughExecutor{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &client{
		api:      openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		user:     cfg.User,
		limiter:  limiter,
		exec:     exec,
		logger:   log,
	}
}

// complete issues one chat completion under the rate limit and executor,
// recording transport metrics per operation.
func (c *client) complete(ctx context.Context, operation, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var content string
	err := c.exec.Execute(ctx, operation, func(ctx context.Context) error {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0,
			User:        c.user,
		})
		duration := time.Since(start)

		if err != nil {
			metrics.ModelRequestsTotal.WithLabelValues(c.provider, c.model, operation, "error").Inc()
			return parseAPIError(err)
		}
		if len(resp.Choices) == 0 {
			metrics.ModelRequestsTotal.WithLabelValues(c.provider, c.model, operation, "error").Inc()
			return fmt.Errorf("empty completion response: %w", domain.ErrModelProviderError)
		}

		metrics.ModelRequestsTotal.WithLabelValues(c.provider, c.model, operation, "success").Inc()
		metrics.ModelRequestDuration.WithLabelValues(c.provider, c.model, operation).Observe(duration.Seconds())
		if resp.Usage.TotalTokens > 0 {
			metrics.ModelTokensTotal.WithLabelValues(c.provider, c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.ModelTokensTotal.WithLabelValues(c.provider, c.model, "total").Add(float64(resp.Usage.TotalTokens))
		}

		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response. All
// errors wrap domain.ErrModelProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrModelProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("model API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("model API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("model request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius
// error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
