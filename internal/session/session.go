// Package session answers questions against one database: it plans the
// question, runs each step through a correction session and assembles the
// response with its frozen trace.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/internal/correction"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/planner"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/trace"
)

// Database is the connection a session owns. *executor.SQLHandle implements it.
type Database interface {
	executor.Handle
	planner.FactSource
	Source(withRowCounts bool) *database.Source
	Driver() string
	Close() error
}

// Answerer turns a finished response into a prose answer.
type Answerer interface {
	Assemble(ctx context.Context, question string, resp *Response) string
}

// Config tunes a session.
type Config struct {
	Generator            generation.Generator
	MaxAttempts          int
	Timeout              time.Duration
	RowCap               int
	RequireClarification bool
	// WithRowCounts counts rows per table when building the snapshot.
	WithRowCounts bool
	// Answerer is optional; without it responses carry no prose answer.
	Answerer Answerer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Session processes one question at a time against its own database handle.
type Session struct {
	mu         sync.Mutex
	db         Database
	snapshot   *schema.Snapshot
	decomposer *planner.Decomposer
	controller *correction.Controller
	cfg        Config
	logger     *zap.Logger
	newID      func() string
}

// New builds the schema snapshot of db and returns a session over it. The
// session takes ownership of db.
func New(ctx context.Context, db Database, cfg Config) (*Session, error) {
	if cfg.Generator == nil {
		return nil, generation.ErrNoGenerator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	snap, err := schema.Build(ctx, db.Source(cfg.WithRowCounts))
	if err != nil {
		return nil, fmt.Errorf("failed to build schema snapshot: %w", err)
	}
	logger.Info("schema snapshot built",
		zap.String("driver", db.Driver()),
		zap.Int("tables", snap.Len()),
		zap.String("hash", snap.Hash()))

	return &Session{
		db:       db,
		snapshot: snap,
		decomposer: &planner.Decomposer{
			Facts:                db,
			RequireClarification: cfg.RequireClarification,
			Logger:               logger.Named("planner"),
		},
		controller: &correction.Controller{
			Generator:   cfg.Generator,
			Engine:      executor.NewEngine(db, logger.Named("executor")),
			MaxAttempts: cfg.MaxAttempts,
			Timeout:     cfg.Timeout,
			RowCap:      cfg.RowCap,
			Metrics:     cfg.Metrics,
			Logger:      logger.Named("correction"),
		},
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
	}, nil
}

// Open connects to connStr read-only and returns a session over the connection.
func Open(ctx context.Context, connStr string, cfg Config, opts executor.Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = cfg.Logger
	}
	h, err := executor.Open(ctx, connStr, opts)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, h, cfg)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return s, nil
}

// Snapshot returns the schema snapshot questions are currently planned against.
func (s *Session) Snapshot() *schema.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Refresh rebuilds the schema snapshot. On failure the previous snapshot stays.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := schema.Build(ctx, s.db.Source(s.cfg.WithRowCounts))
	if err != nil {
		return fmt.Errorf("failed to refresh schema snapshot: %w", err)
	}
	if snap.Hash() != s.snapshot.Hash() {
		s.logger.Info("schema changed", zap.String("old", s.snapshot.Hash()), zap.String("new", snap.Hash()))
	}
	s.snapshot = snap
	return nil
}

// Close releases the database handle.
func (s *Session) Close() error {
	return s.db.Close()
}

// Ask answers one question. Query failures are reported through
// Response.Status; the error is reserved for planning faults and a cancelled
// context, in which case the partial response is returned alongside it.
func (s *Session) Ask(ctx context.Context, question string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot
	tr := trace.New(s.newID())
	resp := &Response{ID: tr.ID, Question: question}
	log := s.logger.With(zap.String("ask", tr.ID))

	tr.Add(trace.Analyze, "Analyzing question", question)
	plan, err := s.decomposer.Plan(ctx, question, snap)
	if err != nil {
		tr.Add(trace.Error, "Planning failed", err.Error())
		s.finish(ctx, resp, tr, false)
		return resp, fmt.Errorf("failed to plan question: %w", err)
	}
	resp.Kind = plan.Kind
	tr.Add(trace.Analyze, fmt.Sprintf("Classified as %s", plan.Kind))

	if plan.Meta != nil {
		resp.Meta = plan.Meta
		resp.Status = StatusAnswered
		tr.Add(trace.Meta, "Answered from the schema", plan.Meta.Text)
		s.finish(ctx, resp, tr, true)
		return resp, nil
	}

	resp.Assumptions = plan.Assumptions
	for _, a := range plan.Assumptions {
		tr.Add(trace.Assumption, "Assuming "+a)
	}

	if plan.NeedsClarification() {
		resp.Status = StatusClarification
		resp.Clarification = plan.Clarification
		tr.Add(trace.Analyze, "Clarification needed", plan.Clarification)
		s.finish(ctx, resp, tr, false)
		return resp, nil
	}

	for _, f := range plan.Facts {
		tr.Add(trace.Fact, fmt.Sprintf("Known values of %s.%s", f.Table, f.Column), strings.Join(f.Values, ", "))
	}

	order, err := plan.Order()
	if err != nil {
		tr.Add(trace.Error, "Planning failed", err.Error())
		s.finish(ctx, resp, tr, false)
		return resp, fmt.Errorf("failed to order plan steps: %w", err)
	}
	multi := len(order) > 1
	if multi {
		goals := make([]string, len(order))
		for i, step := range order {
			goals[i] = fmt.Sprintf("%s: %s", step.ID, step.Goal)
		}
		tr.Add(trace.Plan, fmt.Sprintf("Planned %d steps", len(order)), strings.Join(goals, "\n"))
	}

	results := map[string]StepResult{}
	var last *executor.Outcome
	var lastCut bool
	for _, step := range order {
		deps, err := dependencies(step, results)
		if err != nil {
			tr.Add(trace.Error, "Planning failed", err.Error())
			s.finish(ctx, resp, tr, false)
			return resp, err
		}
		if multi {
			tr.Add(trace.Plan, fmt.Sprintf("Starting %s", step.ID), step.Goal)
		}

		cs := s.controller.Run(ctx, correction.StepRequest{
			StepID: step.ID,
			Request: generation.Request{
				Question:     question,
				Goal:         step.Goal,
				Dialect:      s.db.Driver(),
				Snapshot:     snap,
				Assumptions:  plan.Assumptions,
				Facts:        plan.Facts,
				Dependencies: deps,
			},
		}, tr)

		resp.Steps = append(resp.Steps, StepResult{
			ID:          step.ID,
			Goal:        step.Goal,
			DependsOn:   step.DependsOn,
			State:       cs.State,
			Attempts:    cs.Attempts,
			Transitions: cs.Transitions,
		})
		sr := &resp.Steps[len(resp.Steps)-1]
		if a := cs.Last(); a != nil {
			sr.SQL = a.ExecutedSQL()
		}

		if cs.Err != nil {
			log.Info("ask cancelled", zap.String("step", step.ID), zap.Error(cs.Err))
			s.finish(ctx, resp, tr, false)
			return resp, fmt.Errorf("ask cancelled during %s: %w", step.ID, cs.Err)
		}
		if !cs.Succeeded() {
			resp.Status = StatusExhausted
			if cs.State == correction.RejectedTerminal {
				resp.Status = StatusRejected
			}
			if a := cs.Last(); a != nil {
				resp.Error = a.Message()
			}
			log.Info("ask failed", zap.String("step", step.ID), zap.String("state", string(cs.State)))
			s.finish(ctx, resp, tr, true)
			return resp, nil
		}

		last = cs.Outcome()
		lastCut = cutShort(cs.Last())
		sum := planner.Summarize(last.Columns, last.Rows)
		sr.SummaryColumn, sr.Summary = sum.Column, sum.Values
		sr.SummaryIncomplete = sum.Truncated || lastCut
		if sr.SummaryIncomplete && hasDependents(order, step.ID) {
			tr.Add(trace.Assumption, fmt.Sprintf("Result of %s is incomplete", step.ID),
				fmt.Sprintf("Only the first %d values of %s are carried forward; dependent steps re-derive the full set",
					len(sr.Summary), sr.SummaryColumn))
			log.Info("step summary incomplete", zap.String("step", step.ID), zap.Int("values", len(sr.Summary)))
		}
		results[step.ID] = *sr
	}

	resp.Status = StatusSucceeded
	resp.Columns = last.Columns
	resp.Rows = last.Rows
	resp.RowCount = last.RowCount
	resp.Truncated = lastCut
	s.finish(ctx, resp, tr, true)
	return resp, nil
}

// dependencies collects the summaries a step depends on. Every dependency
// must already have succeeded.
func dependencies(step planner.Step, results map[string]StepResult) ([]generation.DependencyResult, error) {
	var deps []generation.DependencyResult
	for _, id := range step.DependsOn {
		r, ok := results[id]
		if !ok {
			return nil, fmt.Errorf("%s depends on %s, which has not succeeded", step.ID, id)
		}
		deps = append(deps, generation.DependencyResult{
			StepID:    r.ID,
			Goal:      r.Goal,
			Column:    r.SummaryColumn,
			Summary:   r.Summary,
			Truncated: r.SummaryIncomplete,
			SQL:       r.SQL,
		})
	}
	return deps, nil
}

// cutShort reports whether an attempt's rows may be missing qualifying rows:
// the handle stopped at its row limit, or the row cap the validator appended
// was reached.
func cutShort(a *correction.Attempt) bool {
	if a == nil || a.Outcome == nil {
		return false
	}
	if a.Outcome.Truncated {
		return true
	}
	return a.Verdict != nil && a.Verdict.AppendedLimit > 0 && a.Outcome.RowCount >= a.Verdict.AppendedLimit
}

func hasDependents(order []planner.Step, id string) bool {
	for _, step := range order {
		for _, dep := range step.DependsOn {
			if dep == id {
				return true
			}
		}
	}
	return false
}

// finish assembles the answer, freezes the trace and records the ask.
func (s *Session) finish(ctx context.Context, resp *Response, tr *trace.Trace, answer bool) {
	if answer && s.cfg.Answerer != nil && ctx.Err() == nil {
		resp.Answer = s.cfg.Answerer.Assemble(ctx, resp.Question, resp)
		if resp.Answer != "" {
			tr.Add(trace.Answer, "Composed answer", resp.Answer)
		}
	}
	if resp.Status == StatusClarification {
		resp.Answer = resp.Clarification
	}
	tr.Freeze()
	resp.Trace = tr.Entries()

	status := string(resp.Status)
	if status == "" {
		status = "error"
	}
	kind := string(resp.Kind)
	if kind == "" {
		kind = "unplanned"
	}
	s.cfg.Metrics.Ask(kind, status)
}
