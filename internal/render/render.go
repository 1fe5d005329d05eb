package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/session"
	"github.com/askdb/askdb/internal/sqlvalidation"
	"github.com/askdb/askdb/internal/trace"
)

// MaxTableRows bounds the rows drawn by Rows.
const MaxTableRows = 50

// Options selects the optional sections of a rendered response.
type Options struct {
	ShowSQL   bool
	ShowTrace bool
	// ShowRows draws the result table even when an answer is present.
	ShowRows bool
}

// Response writes a response: its answer or rows, and the sections opts enables.
func Response(w io.Writer, resp *session.Response, opts Options) error {
	var sections []string

	if len(resp.Assumptions) > 0 {
		lines := make([]string, len(resp.Assumptions))
		for i, a := range resp.Assumptions {
			lines[i] = "Assuming " + a
		}
		sections = append(sections, assumptionBoxStyle.Render(iconInfo+" "+strings.Join(lines, "\n   ")))
	}

	switch {
	case resp.Status.Failed():
		sections = append(sections, renderError(failureTitle(resp)))
		if resp.Answer != "" {
			sections = append(sections, resp.Answer)
		} else if resp.Error != "" {
			sections = append(sections, resp.Error)
		}
	case resp.Status == session.StatusClarification:
		sections = append(sections, renderWarning(resp.Clarification))
	case resp.Answer != "":
		sections = append(sections, renderSuccess(resp.Answer))
	case resp.Meta != nil:
		sections = append(sections, resp.Meta.Text)
	}

	if len(resp.Columns) > 0 && (opts.ShowRows || resp.Answer == "") {
		sections = append(sections, Rows(resp.Columns, resp.Rows))
		if resp.Truncated {
			sections = append(sections, renderLabel(fmt.Sprintf("(result truncated at %d rows)", resp.RowCount)))
		}
	}

	if opts.ShowSQL {
		for _, step := range resp.Steps {
			if step.SQL == "" {
				continue
			}
			title := "SQL"
			if len(resp.Steps) > 1 {
				title = "SQL (" + step.ID + ")"
			}
			sections = append(sections, renderLabel(title)+"\n"+sqlBoxStyle.Render(step.SQL))
		}
	}

	if opts.ShowTrace && len(resp.Trace) > 0 {
		sections = append(sections, renderHeader("Reasoning trace")+"\n"+Trace(resp.Trace))
	}

	_, err := fmt.Fprintln(w, strings.Join(sections, "\n\n"))
	return err
}

func failureTitle(resp *session.Response) string {
	if resp.Status == session.StatusRejected {
		return "Refused"
	}
	return fmt.Sprintf("Failed after %d attempts", resp.AttemptCount())
}

// Rows draws a result table. Rows beyond MaxTableRows are summarized.
func Rows(columns []string, rows [][]any) string {
	shown := rows
	if len(shown) > MaxTableRows {
		shown = shown[:MaxTableRows]
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(labelStyle).
		Headers(columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	for _, row := range shown {
		cells := make([]string, len(columns))
		for i := range columns {
			if i < len(row) && row[i] != nil {
				cells[i] = fmt.Sprint(row[i])
			} else {
				cells[i] = "NULL"
			}
		}
		t.Row(cells...)
	}

	out := t.String()
	if len(rows) > len(shown) {
		out += "\n" + renderLabel(fmt.Sprintf("... %d more rows", len(rows)-len(shown)))
	}
	return out
}

// Trace draws trace entries as a tree, details indented under their entry.
func Trace(entries []trace.Entry) string {
	var lines []string
	for i, e := range entries {
		last := i == len(entries)-1
		branch, indent := iconBranch, iconPipe
		if last {
			branch, indent = iconLastBranch, iconIndent
		}
		lines = append(lines, branch+styleFor(e.Kind).Render(e.Message))
		if e.Detail == "" {
			continue
		}
		for _, d := range strings.Split(e.Detail, "\n") {
			lines = append(lines, indent+renderLabel(d))
		}
	}
	return strings.Join(lines, "\n")
}

func styleFor(kind trace.Kind) lipgloss.Style {
	switch kind {
	case trace.Error:
		return errorStyle
	case trace.Success, trace.Answer:
		return successStyle
	case trace.Retry:
		return warningStyle
	case trace.Assumption, trace.Fact:
		return infoStyle
	default:
		return lipgloss.NewStyle()
	}
}

// Verdict writes the outcome of validating one statement.
func Verdict(w io.Writer, v sqlvalidation.Verdict) error {
	var b strings.Builder
	if v.Accepted {
		b.WriteString(renderSuccess("Accepted") + "\n")
		b.WriteString(sqlBoxStyle.Render(v.SQL))
		for _, n := range v.Notes {
			b.WriteString("\n" + renderLabel("  - "+n))
		}
	} else {
		title := string(v.Reason)
		if v.Line > 0 {
			title = fmt.Sprintf("%s at %d:%d", title, v.Line, v.Column)
		}
		b.WriteString(renderError(title) + "\n")
		b.WriteString("  " + v.Message)
		for _, s := range v.Suggestions {
			if len(s.Candidates) > 0 {
				b.WriteString("\n" + infoStyle.Render(fmt.Sprintf("  %s: did you mean %s?", s.Identifier, strings.Join(s.Candidates, ", "))))
			}
		}
		if !v.Retryable() {
			b.WriteString("\n" + renderLabel("  (not retryable)"))
		}
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}

// Schema writes a snapshot in its compact form under a header.
func Schema(w io.Writer, snap *schema.Snapshot) error {
	header := renderHeader(fmt.Sprintf("%d tables", snap.Len())) + " " + renderLabel("hash "+snap.Hash())
	_, err := fmt.Fprintf(w, "%s\n\n%s", header, snap.Compact())
	return err
}
