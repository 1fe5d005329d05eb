// Package generation defines the port through which SQL drafts are requested
// from a language model. Drafts are untrusted: every one is validated before
// it can run.
package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/askdb/askdb/internal/schema"
)

// ErrNoGenerator is returned when a question needs SQL but no generator is
// configured.
var ErrNoGenerator = errors.New("no SQL generator configured")

// ErrNoSQL is returned when a model response contains no SQL statement.
var ErrNoSQL = errors.New("could not extract SQL from model response")

// PriorAttempt describes the attempt a correction request follows.
type PriorAttempt struct {
	Number      int      `json:"number"`
	SQL         string   `json:"sql"`
	Category    string   `json:"category"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// DependencyResult is the summarized result of an earlier step.
type DependencyResult struct {
	StepID  string   `json:"step_id"`
	Goal    string   `json:"goal"`
	Column  string   `json:"column,omitempty"`
	Summary []string `json:"summary"`
	// Truncated marks a summary that is missing qualifying values. SQL is
	// the query that produced it, for re-deriving the full set.
	Truncated bool   `json:"truncated,omitempty"`
	SQL       string `json:"sql,omitempty"`
}

// Request asks for SQL that achieves one step of a plan.
type Request struct {
	Question     string             `json:"question"`
	Goal         string             `json:"goal"`
	Dialect      string             `json:"dialect,omitempty"`
	Snapshot     *schema.Snapshot   `json:"-"`
	Assumptions  []string           `json:"assumptions,omitempty"`
	Facts        []schema.Fact      `json:"facts,omitempty"`
	Dependencies []DependencyResult `json:"dependencies,omitempty"`
	Prior        *PriorAttempt      `json:"prior,omitempty"`
	RowCap       int                `json:"row_cap,omitempty"`
}

// Draft is a model's proposed SQL with its stated rationale.
type Draft struct {
	SQL         string   `json:"sql"`
	Reasoning   []string `json:"reasoning,omitempty"`
	Strategy    []string `json:"strategy,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
	// Model is the model that produced the draft; Fallbacks lists models
	// that failed before it.
	Model     string   `json:"model,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// Rationale joins the reasoning and strategy lines.
func (d Draft) Rationale() string {
	lines := append(append([]string(nil), d.Reasoning...), d.Strategy...)
	return strings.Join(lines, "\n")
}

// Generator produces SQL drafts.
type Generator interface {
	Generate(ctx context.Context, req Request) (Draft, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Draft, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Draft, error) {
	return f(ctx, req)
}
