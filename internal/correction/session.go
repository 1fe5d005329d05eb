package correction

import (
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/sqlvalidation"
	"github.com/askdb/askdb/internal/trace"
)

// Transition is one recorded state change.
type Transition struct {
	Attempt int    `json:"attempt"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

// Attempt is one draft and what became of it. Outcome is nil when the
// statement never ran.
type Attempt struct {
	Number          int                    `json:"number"`
	SQL             string                 `json:"sql,omitempty"`
	Rationale       string                 `json:"rationale,omitempty"`
	Model           string                 `json:"model,omitempty"`
	Assumptions     []string               `json:"assumptions,omitempty"`
	Verdict         *sqlvalidation.Verdict `json:"verdict,omitempty"`
	Outcome         *executor.Outcome      `json:"outcome,omitempty"`
	GenerationError string                 `json:"generation_error,omitempty"`
}

// Category returns the failure category of the attempt, or "" when it succeeded.
func (a Attempt) Category() string {
	switch {
	case a.GenerationError != "":
		return GenerationFailed
	case a.Verdict != nil && !a.Verdict.Accepted:
		return string(a.Verdict.Reason)
	case a.Outcome != nil && !a.Outcome.OK:
		return string(a.Outcome.Category)
	}
	return ""
}

// Message returns the failure message of the attempt.
func (a Attempt) Message() string {
	switch {
	case a.GenerationError != "":
		return a.GenerationError
	case a.Verdict != nil && !a.Verdict.Accepted:
		return a.Verdict.Message
	case a.Outcome != nil && !a.Outcome.OK:
		return a.Outcome.Message
	}
	return ""
}

// ExecutedSQL returns the normalized SQL that reached the database, if any.
func (a Attempt) ExecutedSQL() string {
	if a.Outcome == nil || a.Verdict == nil {
		return ""
	}
	return a.Verdict.SQL
}

// prior describes a failed attempt to the next draft request.
func (a Attempt) prior() *generation.PriorAttempt {
	p := &generation.PriorAttempt{
		Number:   a.Number,
		SQL:      a.SQL,
		Category: a.Category(),
		Message:  a.Message(),
	}
	if a.Verdict != nil {
		for _, s := range a.Verdict.Suggestions {
			p.Suggestions = append(p.Suggestions, s.Candidates...)
		}
	}
	return p
}

// Session is the history of one step: its attempts in order, the state it
// ended in and every transition taken.
type Session struct {
	StepID      string       `json:"step_id"`
	State       State        `json:"state"`
	Attempts    []Attempt    `json:"attempts"`
	Transitions []Transition `json:"transitions"`
	// Err is set when the caller's context ended the session early.
	Err error `json:"-"`
}

// Succeeded reports whether the step produced rows.
func (s *Session) Succeeded() bool {
	return s.State == Succeeded
}

// Last returns the final attempt, or nil.
func (s *Session) Last() *Attempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

// Outcome returns the successful outcome, or nil.
func (s *Session) Outcome() *executor.Outcome {
	if !s.Succeeded() {
		return nil
	}
	return s.Last().Outcome
}

func (s *Session) transition(attempt int, to State, reason string) {
	s.Transitions = append(s.Transitions, Transition{Attempt: attempt, From: s.State, To: to, Reason: reason})
	s.State = to
}

func (s *Session) abort(err error, tr *trace.Trace) {
	if s.Err != nil {
		return
	}
	s.Err = err
	tr.Add(trace.Error, "Cancelled", err.Error())
}
