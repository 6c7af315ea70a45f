package openai

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

const entailSystemPrompt = `You are a natural language inference judge. ` +
	`Given a premise and a hypothesis, reply with a single number between 0 ` +
	`and 1: the probability that the premise entails the hypothesis. Reply ` +
	`with the number only.`

// Entailer scores premise/hypothesis entailment via the chat API.
type Entailer struct {
	c *client
}

// NewEntailer creates an entailment adapter.
func NewEntailer(cfg *Config, exec Executor) *Entailer {
	return &Entailer{c: newClient(cfg, exec)}
}

var _ domain.Entailer = (*Entailer)(nil)

// Entail implements domain.Entailer.
func (e *Entailer) Entail(ctx context.Context, premise, hypothesis string) (float64, error) {
	user := fmt.Sprintf("Premise: %s\nHypothesis: %s", premise, hypothesis)
	content, err := e.c.complete(ctx, "entail", entailSystemPrompt, user)
	if err != nil {
		return 0, err
	}
	return parseScore(content)
}

// HealthCheck verifies provider availability.
func (e *Entailer) HealthCheck(ctx context.Context) error {
	return e.c.HealthCheck(ctx)
}
