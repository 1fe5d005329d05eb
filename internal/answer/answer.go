// Package answer turns a finished response into the sentence shown to the
// user. A text model phrases successful results; everything else, and any
// model failure, falls back to Format.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/session"
)

const systemPrompt = `You are a helpful data assistant. Answer the user's question from the data provided.
- Be concise but friendly.
- State counts and findings plainly, e.g. "There are 5 customers in Germany."
- Summarize lists instead of repeating every value.
- Never mention SQL, queries, tables, or rows. Speak about the data itself.
- Use only the data provided; do not invent values.`

// Assembler composes answers. The zero value formats without a model.
type Assembler struct {
	LLM    generation.Completer
	Logger *zap.Logger
}

// New returns an Assembler. llm may be nil.
func New(llm generation.Completer, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{LLM: llm, Logger: logger}
}

var _ session.Answerer = (*Assembler)(nil)

// Assemble returns the answer for resp. Only succeeded responses reach the
// model; failures are always explained verbatim.
func (a *Assembler) Assemble(ctx context.Context, question string, resp *session.Response) string {
	preview := Format(question, resp)
	if a == nil || a.LLM == nil || resp.Status != session.StatusSucceeded {
		return preview
	}

	c, err := a.LLM.Complete(ctx, generation.Prompt{
		System: systemPrompt,
		User:   userPrompt(question, preview),
	})
	text := strings.TrimSpace(c.Text)
	if err != nil || text == "" {
		if err == nil {
			err = fmt.Errorf("empty response")
		}
		a.logger().Warn("answer synthesis failed, using formatted result", zap.Error(err))
		return preview
	}
	return text
}

func (a *Assembler) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func userPrompt(question, preview string) string {
	return fmt.Sprintf("USER QUESTION: %s\n\nDATA:\n%s\n\nAnswer the question.", question, preview)
}
