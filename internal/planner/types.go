package planner

import (
	"errors"
	"fmt"

	"github.com/askdb/askdb/internal/schema"
)

var (
	// ErrCyclicPlan is returned when step dependencies form a cycle.
	ErrCyclicPlan = errors.New("plan steps have a dependency cycle")
	// ErrUnknownDependency is returned when a step depends on a step the plan does not have.
	ErrUnknownDependency = errors.New("plan step depends on an unknown step")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Kind classifies a question.
type Kind string

const (
	KindMeta      Kind = "meta"
	KindSimple    Kind = "simple"
	KindMultiStep Kind = "multi-step"
	KindAmbiguous Kind = "ambiguous"
)

// MetaKind is the kind of question answered from the schema alone.
type MetaKind string

const (
	MetaListTables    MetaKind = "list_tables"
	MetaDescribeTable MetaKind = "describe_table"
)

// Meta is the answer to a question about the schema itself.
type Meta struct {
	Kind   MetaKind `json:"kind"`
	Table  string   `json:"table,omitempty"`
	Tables []string `json:"tables,omitempty"`
	Text   string   `json:"text"`
}

// Step is one unit of work in a plan. Every step runs through its own
// correction session.
type Step struct {
	ID        string   `json:"id"`
	Goal      string   `json:"goal"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Plan is the decomposition of one question.
type Plan struct {
	Question string `json:"question"`
	Kind     Kind   `json:"kind"`
	Steps    []Step `json:"steps,omitempty"`

	// Terms are the ambiguous words found in the question; Assumptions are
	// the interpretations chosen for them.
	Terms         []string      `json:"terms,omitempty"`
	Assumptions   []string      `json:"assumptions,omitempty"`
	Facts         []schema.Fact `json:"facts,omitempty"`
	Clarification string        `json:"clarification,omitempty"`
	Meta          *Meta         `json:"meta,omitempty"`
}

// NeedsClarification reports whether the plan stops to ask the user a question.
func (p *Plan) NeedsClarification() bool {
	return p.Clarification != "" && len(p.Steps) == 0
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Order returns the steps in an order where every step follows its
// dependencies. Steps without a mutual dependency keep their declared order.
func (p *Plan) Order() ([]Step, error) {
	index := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate plan step %q", s.ID)
		}
		index[s.ID] = i
	}

	pending := make([]int, len(p.Steps))
	dependents := make([][]int, len(p.Steps))
	for i, s := range p.Steps {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: step %q depends on %q", ErrUnknownDependency, s.ID, dep)
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]Step, 0, len(p.Steps))
	done := make([]bool, len(p.Steps))
	for len(order) < len(p.Steps) {
		progressed := false
		for i := range p.Steps {
			if done[i] || pending[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			order = append(order, p.Steps[i])
			for _, d := range dependents[i] {
				pending[d]--
			}
			// restart so that declaration order wins among ready steps
			break
		}
		if !progressed {
			return nil, ErrCyclicPlan
		}
	}
	return order, nil
}
