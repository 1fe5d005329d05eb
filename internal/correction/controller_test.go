package correction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/schema/schematest"
	"github.com/askdb/askdb/internal/sqlvalidation"
	"github.com/askdb/askdb/internal/trace"
)

// scriptedGenerator returns drafts in order and records every request.
type scriptedGenerator struct {
	drafts   []string
	requests []generation.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req generation.Request) (generation.Draft, error) {
	g.requests = append(g.requests, req)
	i := len(g.requests) - 1
	if i >= len(g.drafts) {
		i = len(g.drafts) - 1
	}
	return generation.Draft{SQL: g.drafts[i], Reasoning: []string{"reasoned"}}, nil
}

type countingEngine struct {
	executed []string
	outcome  func(sql string) executor.Outcome
}

func (e *countingEngine) Execute(_ context.Context, v sqlvalidation.Verdict, _ time.Duration) executor.Outcome {
	e.executed = append(e.executed, v.SQL)
	return e.outcome(v.SQL)
}

func sqliteEngine(t *testing.T) *executor.Engine {
	t.Helper()
	h, err := executor.Open(context.Background(), schematest.OpenSQLite(t), executor.Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return executor.NewEngine(h, nil)
}

func TestRun_ExhaustsAfterMaxAttempts(t *testing.T) {
	var calls int
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Draft, error) {
		calls++
		return generation.Draft{}, errors.New("model unavailable")
	})
	engine := &countingEngine{}

	c := &Controller{Generator: gen, Engine: engine, MaxAttempts: 3}
	tr := trace.New("t")
	s := c.Run(context.Background(), StepRequest{StepID: "1", Request: generation.Request{Goal: "anything"}}, tr)

	if s.State != Exhausted {
		t.Fatalf("state = %s, want %s", s.State, Exhausted)
	}
	if len(s.Attempts) != 3 || calls != 3 {
		t.Errorf("attempts = %d, generation calls = %d, want 3 and 3", len(s.Attempts), calls)
	}
	for i, a := range s.Attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d numbered %d", i, a.Number)
		}
		if a.Category() != GenerationFailed || a.Outcome != nil {
			t.Errorf("attempt %d = %+v, want a generation failure that never ran", i+1, a)
		}
	}
	if len(engine.executed) != 0 {
		t.Errorf("engine ran %v", engine.executed)
	}
	if tr.Count(trace.Retry) != 2 {
		t.Errorf("retry entries = %d, want 2", tr.Count(trace.Retry))
	}
}

func TestRun_ExhaustsOnFailingExecution(t *testing.T) {
	gen := &scriptedGenerator{drafts: []string{"SELECT Name FROM Track"}}
	engine := &countingEngine{outcome: func(string) executor.Outcome {
		return executor.Outcome{Category: executor.Timeout, Message: "query exceeded the 10s timeout"}
	}}

	c := &Controller{Generator: gen, Engine: engine}
	s := c.Run(context.Background(), StepRequest{StepID: "1"}, trace.New("t"))

	if s.State != Exhausted || len(s.Attempts) != DefaultMaxAttempts || len(gen.requests) != DefaultMaxAttempts {
		t.Fatalf("state = %s, attempts = %d, requests = %d", s.State, len(s.Attempts), len(gen.requests))
	}
	for _, req := range gen.requests[1:] {
		if req.Prior == nil || req.Prior.Category != "Timeout" || req.Prior.Message != "query exceeded the 10s timeout" {
			t.Errorf("correction request lacks the error verbatim: %+v", req.Prior)
		}
	}
}

func TestRun_CorrectsUnknownColumnFromExecution(t *testing.T) {
	gen := &scriptedGenerator{drafts: []string{
		"SELECT Cuntry FROM Customer",
		"SELECT Country FROM Customer ORDER BY Country",
	}}

	reg := metrics.New(nil)
	c := &Controller{Generator: gen, Engine: sqliteEngine(t), Metrics: reg}
	tr := trace.New("t")

	// Without a snapshot the misspelling is only caught by the database
	s := c.Run(context.Background(), StepRequest{StepID: "1", Request: generation.Request{Goal: "customer countries"}}, tr)

	if s.State != Succeeded {
		t.Fatalf("state = %s, want %s; attempts: %+v", s.State, Succeeded, s.Attempts)
	}
	if len(s.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(s.Attempts))
	}

	first := s.Attempts[0]
	if first.Category() != string(executor.UnknownColumn) {
		t.Errorf("first attempt category = %s, want UnknownColumn", first.Category())
	}
	if !strings.Contains(first.Message(), "no such column: Cuntry") {
		t.Errorf("first attempt message = %q", first.Message())
	}

	prior := gen.requests[1].Prior
	if prior == nil || prior.Number != 1 || prior.Category != "UnknownColumn" || prior.SQL != "SELECT Cuntry FROM Customer" {
		t.Errorf("second request prior = %+v", prior)
	}

	out := s.Outcome()
	if out == nil || out.RowCount != 4 || out.Rows[0][0] != "Brazil" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if s.Last().ExecutedSQL() != "SELECT Country FROM Customer ORDER BY Country LIMIT 100;" {
		t.Errorf("executed SQL = %q", s.Last().ExecutedSQL())
	}
	if got := tr.Count(trace.SQL); got != 2 {
		t.Errorf("trace has %d SQL entries, want 2", got)
	}

	wantTransitions := []Transition{
		{Attempt: 1, From: Drafting, To: Validating},
		{Attempt: 1, From: Validating, To: Executing},
		{Attempt: 1, From: Executing, To: Failed, Reason: "UnknownColumn"},
		{Attempt: 1, From: Failed, To: Correcting},
		{Attempt: 1, From: Correcting, To: Drafting, Reason: "UnknownColumn"},
		{Attempt: 2, From: Drafting, To: Validating},
		{Attempt: 2, From: Validating, To: Executing},
		{Attempt: 2, From: Executing, To: Succeeded},
	}
	if diff := cmp.Diff(wantTransitions, s.Transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CorrectsUnknownColumnFromValidation(t *testing.T) {
	gen := &scriptedGenerator{drafts: []string{
		"SELECT Cuntry FROM Customer",
		"SELECT Country FROM Customer",
	}}
	engine := &countingEngine{outcome: func(string) executor.Outcome {
		return executor.Outcome{OK: true, Columns: []string{"Country"}, Rows: [][]any{{"Brazil"}}, RowCount: 1}
	}}

	c := &Controller{Generator: gen, Engine: engine}
	req := StepRequest{StepID: "1", Request: generation.Request{Goal: "countries", Snapshot: schematest.Snapshot()}}
	s := c.Run(context.Background(), req, trace.New("t"))

	if s.State != Succeeded || len(s.Attempts) != 2 {
		t.Fatalf("state = %s with %d attempts", s.State, len(s.Attempts))
	}
	if s.Attempts[0].Outcome != nil {
		t.Error("a rejected draft reached the engine")
	}
	if diff := cmp.Diff([]string{"SELECT Country FROM Customer LIMIT 100;"}, engine.executed); diff != "" {
		t.Errorf("executed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Country"}, gen.requests[1].Prior.Suggestions); diff != "" {
		t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_WriteIsRejectedTerminal(t *testing.T) {
	gen := &scriptedGenerator{drafts: []string{"DELETE FROM Customer;"}}
	engine := &countingEngine{}

	c := &Controller{Generator: gen, Engine: engine}
	tr := trace.New("t")
	s := c.Run(context.Background(), StepRequest{StepID: "1"}, tr)

	if s.State != RejectedTerminal {
		t.Fatalf("state = %s, want %s", s.State, RejectedTerminal)
	}
	if len(s.Attempts) != 1 || len(gen.requests) != 1 {
		t.Errorf("attempts = %d, requests = %d, want 1 and 1", len(s.Attempts), len(gen.requests))
	}
	if len(engine.executed) != 0 {
		t.Errorf("engine ran %v", engine.executed)
	}
	if s.Last().Category() != string(sqlvalidation.WriteOperationBlocked) {
		t.Errorf("category = %s", s.Last().Category())
	}
	if tr.Count(trace.Retry) != 0 {
		t.Error("a terminal rejection was retried")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	gen := &scriptedGenerator{drafts: []string{"SELECT 1"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Controller{Generator: gen, Engine: &countingEngine{}}
	s := c.Run(ctx, StepRequest{StepID: "1"}, trace.New("t"))

	if !errors.Is(s.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", s.Err)
	}
	if len(gen.requests) != 0 || len(s.Attempts) != 0 {
		t.Error("a cancelled session generated SQL")
	}
}

func TestRun_RecordsModelFallbacksAndRationale(t *testing.T) {
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Draft, error) {
		return generation.Draft{
			SQL:         "SELECT Name FROM Genre",
			Reasoning:   []string{"genres live in Genre"},
			Strategy:    []string{"Genre table"},
			Assumptions: []string{"all genres"},
			Model:       "gemini-1.5-flash",
			Fallbacks:   []string{"gemini-2.0-flash: quota exceeded"},
		}, nil
	})
	engine := &countingEngine{outcome: func(string) executor.Outcome {
		return executor.Outcome{OK: true, RowCount: 3}
	}}

	c := &Controller{Generator: gen, Engine: engine}
	tr := trace.New("t")
	s := c.Run(context.Background(), StepRequest{StepID: "1"}, tr)

	if !s.Succeeded() {
		t.Fatalf("state = %s", s.State)
	}
	var messages []string
	for _, e := range tr.Entries() {
		messages = append(messages, string(e.Kind)+": "+e.Message)
	}
	want := []string{
		"generate: Generating SQL (attempt 1/3)",
		"generate: Model fallback",
		"plan: genres live in Genre",
		"plan: Strategy: Genre table",
		"assumption: all genres",
		"sql: Drafted SQL (attempt 1)",
		"validate: Validation passed",
		"execute: Executing query (attempt 1/3)",
		"success: Query executed successfully (3 rows)",
	}
	if diff := cmp.Diff(want, messages); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if s.Last().Model != "gemini-1.5-flash" || s.Last().Rationale != "genres live in Genre\nGenre table" {
		t.Errorf("attempt = %+v", s.Last())
	}
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{Drafting, false},
		{Validating, false},
		{Executing, false},
		{Failed, false},
		{Correcting, false},
		{Succeeded, true},
		{Exhausted, true},
		{RejectedTerminal, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
