package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

const generateSystemPrompt = `You answer questions using only the provided ` +
	`passages. Write short factual sentences, one per line. Do not add ` +
	`information that is not in the passages. Do not number the lines.`

// maxGeneratorPassages bounds prompt size regardless of fusion output.
const maxGeneratorPassages = 8

// Generator drafts answer sentences from selected passages via the chat API.
type Generator struct {
	c *client
}

// NewGenerator creates a generator adapter.
func NewGenerator(cfg *Config, exec Executor) *Generator {
	return &Generator{c: newClient(cfg, exec)}
}

var _ domain.Generator = (*Generator)(nil)

// Generate implements domain.Generator. The reply is split on newlines into
// individual sentences for downstream evidence gating.
func (g *Generator) Generate(ctx context.Context, query string, passages []domain.Candidate) ([]string, error) {
	if len(passages) > maxGeneratorPassages {
		passages = passages[:maxGeneratorPassages]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nPassages:\n", query)
	for i, p := range passages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.Content)
	}

	content, err := g.c.complete(ctx, "generate", generateSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var sentences []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			sentences = append(sentences, line)
		}
	}
	return sentences, nil
}

// HealthCheck verifies provider availability.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return g.c.HealthCheck(ctx)
}
