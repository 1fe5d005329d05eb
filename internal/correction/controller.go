// Package correction drives the draft, validate, execute and correct cycle
// for one plan step.
package correction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/sqlvalidation"
	"github.com/askdb/askdb/internal/trace"
)

// DefaultMaxAttempts counts the first try.
const DefaultMaxAttempts = 3

// GenerationFailed is the failure category of an attempt whose draft could
// not be produced.
const GenerationFailed = "GenerationFailed"

// State is a controller state.
type State string

const (
	Drafting         State = "Drafting"
	Validating       State = "Validating"
	Executing        State = "Executing"
	Succeeded        State = "Succeeded"
	Failed           State = "Failed"
	Correcting       State = "Correcting"
	Exhausted        State = "Exhausted"
	RejectedTerminal State = "RejectedTerminal"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Exhausted || s == RejectedTerminal
}

// Executor runs accepted statements. *executor.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, v sqlvalidation.Verdict, timeout time.Duration) executor.Outcome
}

// StepRequest is the work for one step.
type StepRequest struct {
	StepID  string
	Request generation.Request
}

// Controller runs correction sessions. The zero value is not usable;
// Generator and Engine are required.
type Controller struct {
	Generator   generation.Generator
	Engine      Executor
	MaxAttempts int
	Timeout     time.Duration
	RowCap      int
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

func (c *Controller) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Controller) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Run executes the state machine until a terminal state or until ctx is
// cancelled. Attempts are strictly sequential and numbered from 1.
func (c *Controller) Run(ctx context.Context, req StepRequest, tr *trace.Trace) *Session {
	s := &Session{StepID: req.StepID, State: Drafting}
	maxAttempts := c.maxAttempts()
	log := c.logger().With(zap.String("step", req.StepID))

	var prior *generation.PriorAttempt
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			s.abort(err, tr)
			return s
		}

		a := c.attempt(ctx, s, req, prior, n, maxAttempts, tr, log)
		if s.Err != nil {
			// A draft that never arrived is not an attempt
			if a.SQL != "" {
				s.Attempts = append(s.Attempts, a)
			}
			return s
		}
		s.Attempts = append(s.Attempts, a)

		if s.State == Succeeded || s.State == RejectedTerminal {
			c.Metrics.Session(string(s.State))
			return s
		}

		prior = a.prior()
		s.transition(n, Correcting, "")
		if n >= maxAttempts {
			s.transition(n, Exhausted, fmt.Sprintf("reached %d attempts", maxAttempts))
			tr.Add(trace.Error, fmt.Sprintf("Giving up after %d attempts", n), a.Message())
			log.Info("correction exhausted", zap.Int("attempts", n), zap.String("category", a.Category()))
			c.Metrics.Session(string(Exhausted))
			return s
		}

		tr.Add(trace.Retry,
			fmt.Sprintf("Retrying with error context (attempt %d/%d)", n+1, maxAttempts),
			fmt.Sprintf("%s: %s", prior.Category, prior.Message))
		s.transition(n, Drafting, prior.Category)
	}
}

// attempt runs Drafting, Validating and Executing once. It leaves the
// session in Succeeded, RejectedTerminal or Failed, or aborted.
func (c *Controller) attempt(ctx context.Context, s *Session, req StepRequest, prior *generation.PriorAttempt,
	n, maxAttempts int, tr *trace.Trace, log *zap.Logger) Attempt {
	a := Attempt{Number: n}

	r := req.Request
	r.Prior = prior
	if r.RowCap == 0 {
		r.RowCap = c.RowCap
	}

	tr.Add(trace.Generate, fmt.Sprintf("Generating SQL (attempt %d/%d)", n, maxAttempts), r.Goal)
	draft, err := c.Generator.Generate(ctx, r)
	for _, f := range draft.Fallbacks {
		tr.Add(trace.Generate, "Model fallback", f)
	}
	if err != nil {
		if ctx.Err() != nil {
			s.abort(ctx.Err(), tr)
			return a
		}
		a.GenerationError = err.Error()
		tr.Add(trace.Error, "SQL generation failed", err.Error())
		log.Warn("generation failed", zap.Int("attempt", n), zap.Error(err))
		c.Metrics.Attempt("generation_failed")
		s.transition(n, Failed, GenerationFailed)
		return a
	}

	a.SQL = draft.SQL
	a.Rationale = draft.Rationale()
	a.Model = draft.Model
	for _, line := range draft.Reasoning {
		tr.Add(trace.Plan, line)
	}
	for _, line := range draft.Strategy {
		tr.Add(trace.Plan, "Strategy: "+line)
	}
	for _, line := range draft.Assumptions {
		a.Assumptions = append(a.Assumptions, line)
		tr.Add(trace.Assumption, line)
	}
	tr.Add(trace.SQL, fmt.Sprintf("Drafted SQL (attempt %d)", n), draft.SQL)

	s.transition(n, Validating, "")
	v := sqlvalidation.Validate(draft.SQL, r.Snapshot, sqlvalidation.Options{RowCap: c.RowCap})
	a.Verdict = &v

	if !v.Accepted {
		tr.Add(trace.Validate, fmt.Sprintf("Rejected: %s", v.Reason), v.Message)
		log.Debug("draft rejected", zap.Int("attempt", n), zap.String("reason", string(v.Reason)))
		if !v.Retryable() {
			c.Metrics.Attempt("rejected")
			s.transition(n, RejectedTerminal, string(v.Reason))
			return a
		}
		c.Metrics.Attempt("invalid")
		s.transition(n, Failed, string(v.Reason))
		return a
	}

	detail := v.SQL
	if len(v.Notes) > 0 {
		detail = fmt.Sprintf("%s (%s)", v.SQL, strings.Join(v.Notes, "; "))
	}
	tr.Add(trace.Validate, "Validation passed", detail)

	s.transition(n, Executing, "")
	tr.Add(trace.Execute, fmt.Sprintf("Executing query (attempt %d/%d)", n, maxAttempts), v.SQL)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = executor.DefaultTimeout
	}
	out := c.Engine.Execute(ctx, v, timeout)
	a.Outcome = &out

	if out.OK {
		c.Metrics.Execution("ok", out.Elapsed)
		c.Metrics.Attempt("succeeded")
		tr.Add(trace.Success,
			fmt.Sprintf("Query executed successfully (%d rows)", out.RowCount),
			fmt.Sprintf("Execution time: %.3fs", out.Elapsed.Seconds()))
		log.Debug("step succeeded", zap.Int("attempt", n), zap.Int("rows", out.RowCount))
		s.transition(n, Succeeded, "")
		return a
	}

	c.Metrics.Execution(string(out.Category), out.Elapsed)
	if ctx.Err() != nil {
		s.abort(ctx.Err(), tr)
		return a
	}

	c.Metrics.Attempt("failed")
	tr.Add(trace.Error, fmt.Sprintf("Query failed: %s", out.Category), out.Message)
	log.Debug("execution failed", zap.Int("attempt", n), zap.String("category", string(out.Category)))
	s.transition(n, Failed, string(out.Category))
	return a
}
