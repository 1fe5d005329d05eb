package session

import (
	"github.com/askdb/askdb/internal/correction"
	"github.com/askdb/askdb/internal/planner"
	"github.com/askdb/askdb/internal/trace"
)

// Status is the final state of an ask.
type Status string

const (
	// StatusSucceeded means every step produced rows.
	StatusSucceeded Status = "succeeded"
	// StatusAnswered means the question was answered from the schema alone.
	StatusAnswered Status = "answered"
	// StatusClarification means the question must be restated before any SQL runs.
	StatusClarification Status = "needs_clarification"
	// StatusExhausted means a step used every attempt without succeeding.
	StatusExhausted Status = "exhausted"
	// StatusRejected means a draft was refused for a reason no retry can fix.
	StatusRejected Status = "rejected"
)

// Failed reports whether the ask ended without a result.
func (s Status) Failed() bool {
	return s == StatusExhausted || s == StatusRejected
}

// StepResult is the record of one plan step.
type StepResult struct {
	ID          string                  `json:"id"`
	Goal        string                  `json:"goal"`
	DependsOn   []string                `json:"depends_on,omitempty"`
	State       correction.State        `json:"state"`
	SQL         string                  `json:"sql,omitempty"`
	Attempts    []correction.Attempt    `json:"attempts"`
	Transitions []correction.Transition `json:"transitions"`
	// SummaryColumn and Summary are the first-column values handed to
	// dependent steps.
	SummaryColumn string   `json:"summary_column,omitempty"`
	Summary       []string `json:"summary,omitempty"`
	// SummaryIncomplete is set when the step's result or its summary was cut
	// short, so Summary is not the full set of qualifying values.
	SummaryIncomplete bool `json:"summary_incomplete,omitempty"`
}

// Response is everything one ask produced. Columns and Rows hold the result
// of the final step and are empty unless Status is StatusSucceeded.
type Response struct {
	ID            string        `json:"id"`
	Question      string        `json:"question"`
	Kind          planner.Kind  `json:"kind"`
	Status        Status        `json:"status"`
	Columns       []string      `json:"columns,omitempty"`
	Rows          [][]any       `json:"rows,omitempty"`
	RowCount      int           `json:"row_count"`
	Truncated     bool          `json:"truncated,omitempty"`
	Assumptions   []string      `json:"assumptions,omitempty"`
	Clarification string        `json:"clarification,omitempty"`
	Meta          *planner.Meta `json:"meta,omitempty"`
	Steps         []StepResult  `json:"steps,omitempty"`
	// Error is the message of the last failed attempt when Status is a failure.
	Error  string        `json:"error,omitempty"`
	Answer string        `json:"answer,omitempty"`
	Trace  []trace.Entry `json:"trace"`
}

// FinalSQL returns the SQL that produced the result, if any.
func (r *Response) FinalSQL() string {
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1].SQL
}

// AttemptCount is the number of attempts across all steps.
func (r *Response) AttemptCount() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Attempts)
	}
	return n
}
