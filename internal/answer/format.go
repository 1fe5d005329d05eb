package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/askdb/askdb/internal/session"
)

const (
	// SmallTableRows is the largest result printed in full.
	SmallTableRows = 20
	// SampleRows is the number of rows shown for larger results.
	SampleRows = 10
	// MaxCellWidth truncates long values in tables.
	MaxCellWidth = 50
)

var (
	howManySubject = regexp.MustCompile(`how many\s+(.*?)\s+(?:are|have|has|do|does|did|in|from|there|were|was)\b`)
	howManyWord    = regexp.MustCompile(`how many\s+(\w+)`)
)

// Format renders a response without a model. The shape of the result picks
// the layout: a sentence for one value, a numbered list for one column, a
// table for up to SmallTableRows rows and a sample beyond that.
func Format(question string, resp *session.Response) string {
	switch {
	case resp.Meta != nil:
		return resp.Meta.Text
	case resp.Status == session.StatusClarification:
		return resp.Clarification
	case resp.Status.Failed():
		return failure(resp)
	case resp.Status != session.StatusSucceeded:
		return ""
	}

	var out string
	switch {
	case resp.RowCount == 0:
		return "No data matched the question."
	case resp.RowCount == 1 && len(resp.Columns) == 1:
		out = singleValue(question, resp.Columns[0], resp.Rows[0][0])
	case len(resp.Columns) == 1:
		out = list(resp.Columns[0], resp.Rows)
	case resp.RowCount <= SmallTableRows:
		out = fmt.Sprintf("Found %d results:\n\n%s", resp.RowCount, table(resp.Columns, resp.Rows))
	default:
		out = fmt.Sprintf("Found %d results. First %d:\n\n%s\n... and %d more.",
			resp.RowCount, SampleRows, table(resp.Columns, resp.Rows[:SampleRows]), resp.RowCount-SampleRows)
	}
	if resp.Truncated {
		out += fmt.Sprintf("\n(Only the first %d rows were read.)", resp.RowCount)
	}
	return out
}

func failure(resp *session.Response) string {
	if resp.Status == session.StatusRejected {
		return fmt.Sprintf("The question could not be answered safely: %s", resp.Error)
	}
	return fmt.Sprintf("The question could not be answered after %d attempts. Last error: %s",
		resp.AttemptCount(), resp.Error)
}

func singleValue(question, column string, value any) string {
	v := cell(value)
	col := strings.ToLower(column)
	switch {
	case strings.Contains(col, "count"):
		return fmt.Sprintf("There are %s %s.", v, subject(question))
	case strings.Contains(col, "avg") || strings.Contains(col, "average"):
		return fmt.Sprintf("The average is %s.", v)
	case strings.Contains(col, "sum") || strings.Contains(col, "total"):
		return fmt.Sprintf("The total is %s.", v)
	}
	return fmt.Sprintf("The answer is %s.", v)
}

// subject extracts what a "how many" question counts.
func subject(question string) string {
	q := strings.ToLower(question)
	if m := howManySubject.FindStringSubmatch(q); m != nil {
		return m[1]
	}
	if m := howManyWord.FindStringSubmatch(q); m != nil {
		return m[1]
	}
	return "results"
}

func list(column string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s values:\n\n", len(rows), column)
	for i, row := range rows {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cell(row[0]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// table lays rows out in aligned, pipe-separated columns.
func table(columns []string, rows [][]any) string {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = min(runewidth.StringWidth(c), MaxCellWidth)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			s := runewidth.Truncate(cell(v), MaxCellWidth, "…")
			cells[r][i] = s
			widths[i] = max(widths[i], runewidth.StringWidth(s))
		}
	}

	line := func(values []string) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = runewidth.FillRight(v, widths[i])
		}
		return strings.TrimRight(strings.Join(parts, " | "), " ")
	}

	header := line(columns)
	lines := []string{header, strings.Repeat("-", runewidth.StringWidth(header))}
	for _, row := range cells {
		lines = append(lines, line(row))
	}
	return strings.Join(lines, "\n")
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
