package planner

import "fmt"

// MaxSummaryValues caps the values carried from one step to the next.
const MaxSummaryValues = 50

// Summary is the part of a step's result handed to dependent steps.
type Summary struct {
	Column string
	Values []string
	// Truncated is set when distinct values past MaxSummaryValues were dropped.
	Truncated bool
}

// Summarize reduces a step's result to the distinct non-null values of its
// first column, in result order.
func Summarize(columns []string, rows [][]any) Summary {
	if len(columns) == 0 {
		return Summary{}
	}

	s := Summary{Column: columns[0], Values: []string{}}
	seen := map[string]bool{}
	for _, row := range rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		v := fmt.Sprint(row[0])
		if seen[v] {
			continue
		}
		if len(s.Values) == MaxSummaryValues {
			s.Truncated = true
			break
		}
		seen[v] = true
		s.Values = append(s.Values, v)
	}
	return s
}
