package generation

import (
	"fmt"
	"strings"
)

// SystemPrompt sets the rules every SQL draft must follow.
const SystemPrompt = `You are an expert database analyst and SQL engineer.

Convert natural language questions into safe, efficient, read-only SQL queries.

Rules:
1. Reason step by step before writing SQL.
2. Use only the tables and columns listed in the schema; never guess names.
3. Write exactly one SELECT statement (a WITH clause is allowed). Never write INSERT, UPDATE, DELETE, DROP, ALTER, CREATE or PRAGMA.
4. List explicit columns instead of SELECT *.
5. Always end the query with a LIMIT clause.
6. When a term is ambiguous, follow the stated assumptions and list any new ones.
7. Use the known column values for literal filters.

Respond with a JSON object:
{"reasoning": ["..."], "strategy": ["tables, joins, filters, grouping"], "sql": "SELECT ...", "assumptions": ["..."]}`

// BuildPrompt renders the user prompt for a request.
func BuildPrompt(req Request) string {
	var b strings.Builder

	dialect := req.Dialect
	if dialect == "" {
		dialect = "sqlite"
	}
	fmt.Fprintf(&b, "DATABASE SCHEMA (%s):\n", dialect)
	if req.Snapshot != nil {
		b.WriteString(req.Snapshot.Compact())
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "QUESTION: %s\n", req.Question)
	if req.Goal != "" && req.Goal != req.Question {
		fmt.Fprintf(&b, "CURRENT STEP: %s\n", req.Goal)
	}

	if len(req.Assumptions) > 0 {
		b.WriteString("\nASSUMPTIONS (apply these):\n")
		for _, a := range req.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if len(req.Facts) > 0 {
		b.WriteString("\nKNOWN VALUES:\n")
		for _, f := range req.Facts {
			fmt.Fprintf(&b, "- %s.%s: %s\n", f.Table, f.Column, strings.Join(f.Values, ", "))
		}
	}

	if len(req.Dependencies) > 0 {
		b.WriteString("\nRESULTS OF EARLIER STEPS:\n")
		for _, d := range req.Dependencies {
			label := d.Goal
			if d.Column != "" {
				label = fmt.Sprintf("%s (column %s)", d.Goal, d.Column)
			}
			if len(d.Summary) == 0 {
				fmt.Fprintf(&b, "- step %s, %s: no rows\n", d.StepID, label)
				continue
			}
			suffix := ""
			if d.Truncated {
				suffix = ", ... (incomplete)"
			}
			fmt.Fprintf(&b, "- step %s, %s: %s%s\n", d.StepID, label, strings.Join(d.Summary, ", "), suffix)
		}
		b.WriteString("Restrict this step to the values above.\n")
		for _, d := range req.Dependencies {
			if !d.Truncated {
				continue
			}
			fmt.Fprintf(&b, "The values of step %s are only the first %d of a larger set. "+
				"Do not use them as a literal IN list; re-derive the full set with a subquery", d.StepID, len(d.Summary))
			if d.SQL != "" {
				fmt.Fprintf(&b, " based on its query, without its LIMIT:\n%s\n", strings.TrimSuffix(d.SQL, ";"))
			} else {
				b.WriteString(".\n")
			}
		}
	}

	if p := req.Prior; p != nil {
		fmt.Fprintf(&b, "\nATTEMPT %d FAILED.\n", p.Number)
		if p.SQL != "" {
			fmt.Fprintf(&b, "SQL:\n%s\n", p.SQL)
		}
		fmt.Fprintf(&b, "ERROR (%s): %s\n", p.Category, p.Message)
		if len(p.Suggestions) > 0 {
			fmt.Fprintf(&b, "Did you mean: %s\n", strings.Join(p.Suggestions, ", "))
		}
		b.WriteString("Write a corrected query that avoids this error.\n")
	}

	if req.RowCap > 0 {
		fmt.Fprintf(&b, "\nReturn at most %d rows.\n", req.RowCap)
	}

	return b.String()
}
