// Package trace records the reasoning steps of one ask as an append-only log.
package trace

import (
	"fmt"
	"sync"
	"time"
)

// Kind labels a trace entry.
type Kind string

const (
	Analyze    Kind = "analyze"
	Meta       Kind = "meta"
	Assumption Kind = "assumption"
	Fact       Kind = "fact"
	Plan       Kind = "plan"
	Generate   Kind = "generate"
	SQL        Kind = "sql"
	Validate   Kind = "validate"
	Execute    Kind = "execute"
	Error      Kind = "error"
	Retry      Kind = "retry"
	Success    Kind = "success"
	Answer     Kind = "answer"
)

// Entry is one step of the trace. Seq starts at 1.
type Entry struct {
	Seq     int       `json:"seq"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Trace is an ordered, append-only list of entries. Once frozen, appends are
// ignored. A Trace is safe for concurrent use.
type Trace struct {
	ID string `json:"id"`

	mu      sync.Mutex
	entries []Entry
	frozen  bool
	now     func() time.Time
}

// New returns an empty trace identified by id.
func New(id string) *Trace {
	return &Trace{ID: id, now: time.Now}
}

// Add appends an entry and returns its sequence number, or 0 when the trace
// is frozen or nil.
func (t *Trace) Add(kind Kind, message string, detail ...string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return 0
	}
	e := Entry{
		Seq:     len(t.entries) + 1,
		Kind:    kind,
		Message: message,
		At:      t.now(),
	}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	t.entries = append(t.entries, e)
	return e.Seq
}

// Addf appends an entry with a formatted message.
func (t *Trace) Addf(kind Kind, format string, args ...any) int {
	return t.Add(kind, fmt.Sprintf(format, args...))
}

// Freeze stops further appends.
func (t *Trace) Freeze() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether the trace accepts appends.
func (t *Trace) Frozen() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// Entries returns a copy of the entries in order.
func (t *Trace) Entries() []Entry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Count returns the number of entries of a kind.
func (t *Trace) Count(kind Kind) int {
	n := 0
	for _, e := range t.Entries() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// First returns the sequence number of the first entry of a kind, or 0.
func (t *Trace) First(kind Kind) int {
	for _, e := range t.Entries() {
		if e.Kind == kind {
			return e.Seq
		}
	}
	return 0
}
