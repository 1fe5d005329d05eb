package generation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Prompt is one request to a text model.
type Prompt struct {
	System string
	User   string
	// JSON asks the model for a JSON response.
	JSON bool
}

// Completion is a model response. Fallbacks lists the models that failed
// before Model answered.
type Completion struct {
	Text      string
	Model     string
	Fallbacks []string
}

// Completer is a text model.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}

// LLMGenerator drafts SQL with a text model.
type LLMGenerator struct {
	LLM    Completer
	Logger *zap.Logger
}

// NewLLMGenerator returns a Generator backed by llm.
func NewLLMGenerator(llm Completer, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{LLM: llm, Logger: logger}
}

// Generate asks the model for a draft and parses its response.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (Draft, error) {
	if g == nil || g.LLM == nil {
		return Draft{}, ErrNoGenerator
	}

	c, err := g.LLM.Complete(ctx, Prompt{System: SystemPrompt, User: BuildPrompt(req), JSON: true})
	if err != nil {
		return Draft{Fallbacks: c.Fallbacks}, fmt.Errorf("failed to generate SQL: %w", err)
	}

	d, err := ParseDraft(c.Text)
	d.Model = c.Model
	d.Fallbacks = c.Fallbacks
	if err != nil {
		g.Logger.Debug("unparseable model response", zap.String("model", c.Model), zap.String("text", c.Text))
		return d, err
	}

	g.Logger.Debug("drafted SQL", zap.String("model", c.Model), zap.String("sql", d.SQL))
	return d, nil
}
