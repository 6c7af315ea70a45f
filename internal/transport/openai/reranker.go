package openai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

const rerankSystemPrompt = `You are a relevance scorer. Given a query and a ` +
	`candidate sentence, reply with a single number between 0 and 1: the ` +
	`probability that the candidate is relevant to the query. Reply with the ` +
	`number only.`

// Reranker scores query/candidate relevance via the chat API.
type Reranker struct {
	c *client
}

// NewReranker creates a reranker adapter.
func NewReranker(cfg *Config, exec Executor) *Reranker {
	return &Reranker{c: newClient(cfg, exec)}
}

var _ domain.Reranker = (*Reranker)(nil)

// Rerank implements domain.Reranker.
func (r *Reranker) Rerank(ctx context.Context, query, candidate string) (float64, error) {
	user := fmt.Sprintf("Query: %s\nCandidate: %s", query, candidate)
	content, err := r.c.complete(ctx, "rerank", rerankSystemPrompt, user)
	if err != nil {
		return 0, err
	}
	return parseScore(content)
}

// HealthCheck verifies provider availability.
func (r *Reranker) HealthCheck(ctx context.Context) error {
	return r.c.HealthCheck(ctx)
}

// parseScore reads the model's numeric reply and clamps it into [0,1].
// A non-numeric reply is a provider error, not a score of zero.
func parseScore(content string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(content))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty score reply: %w", domain.ErrModelProviderError)
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score reply %q: %w", content, domain.ErrModelProviderError)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
