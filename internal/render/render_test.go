package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/correction"
	"github.com/askdb/askdb/internal/planner"
	"github.com/askdb/askdb/internal/schema/schematest"
	"github.com/askdb/askdb/internal/session"
	"github.com/askdb/askdb/internal/sqlvalidation"
	"github.com/askdb/askdb/internal/trace"
)

func TestResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    *session.Response
		opts    Options
		want    []string
		notWant []string
	}{
		{
			name: "answer with assumption",
			resp: &session.Response{
				Status:      session.StatusSucceeded,
				Answer:      "There are 3 recent invoices.",
				Assumptions: []string{"recent = last 30 days"},
				Columns:     []string{"n"},
				Rows:        [][]any{{int64(3)}},
				RowCount:    1,
			},
			want:    []string{"There are 3 recent invoices.", "Assuming recent = last 30 days"},
			notWant: []string{"SQL"},
		},
		{
			name: "rows without an answer",
			resp: &session.Response{
				Status:   session.StatusSucceeded,
				Columns:  []string{"FirstName", "Country"},
				Rows:     [][]any{{"Luis", "Brazil"}, {"Bjorn", nil}},
				RowCount: 2,
			},
			want: []string{"FirstName", "Country", "Luis", "Brazil", "NULL"},
		},
		{
			name: "sql per step",
			resp: &session.Response{
				Status: session.StatusSucceeded,
				Answer: "Leonie",
				Steps: []session.StepResult{
					{ID: "step1", SQL: "SELECT CustomerId FROM Invoice LIMIT 100;"},
					{ID: "step2", SQL: "SELECT FirstName FROM Customer LIMIT 100;"},
				},
			},
			opts: Options{ShowSQL: true},
			want: []string{"SQL (step1)", "SELECT CustomerId FROM Invoice LIMIT 100;", "SQL (step2)"},
		},
		{
			name: "exhausted",
			resp: &session.Response{
				Status: session.StatusExhausted,
				Error:  "no such column: Cuntry",
				Steps:  []session.StepResult{{Attempts: make([]correction.Attempt, 3)}},
			},
			want: []string{"Failed after 3 attempts", "no such column: Cuntry"},
		},
		{
			name: "rejected",
			resp: &session.Response{Status: session.StatusRejected, Answer: "The question could not be answered safely: blocked"},
			want: []string{"Refused", "could not be answered safely"},
		},
		{
			name: "clarification",
			resp: &session.Response{Status: session.StatusClarification, Clarification: `What do you mean by "good"?`},
			want: []string{`What do you mean by "good"?`},
		},
		{
			name: "meta without answer",
			resp: &session.Response{Status: session.StatusAnswered, Meta: &planner.Meta{Text: "Database contains 2 tables:"}},
			want: []string{"Database contains 2 tables:"},
		},
		{
			name: "trace",
			resp: &session.Response{
				Status: session.StatusSucceeded,
				Answer: "4",
				Trace: []trace.Entry{
					{Seq: 1, Kind: trace.Analyze, Message: "Analyzing question"},
					{Seq: 2, Kind: trace.Success, Message: "Query executed successfully (1 rows)", Detail: "Execution time: 0.001s"},
				},
			},
			opts: Options{ShowTrace: true},
			want: []string{"Reasoning trace", "├── Analyzing question", "└── Query executed successfully (1 rows)", "    Execution time: 0.001s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Response(&buf, tt.resp, tt.opts); err != nil {
				t.Fatalf("Response failed: %v", err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Expected %q in output:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("Did not expect %q in output:\n%s", w, out)
				}
			}
		})
	}
}

func TestRows_SummarizesLongResults(t *testing.T) {
	rows := make([][]any, MaxTableRows+5)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	out := Rows([]string{"TrackId"}, rows)
	if !strings.Contains(out, "... 5 more rows") {
		t.Errorf("Expected a summary of the hidden rows:\n%s", out)
	}
}

func TestTrace_MultilineDetail(t *testing.T) {
	out := Trace([]trace.Entry{
		{Kind: trace.Plan, Message: "Planned 2 steps", Detail: "step1: a\nstep2: b"},
		{Kind: trace.Answer, Message: "Composed answer"},
	})
	want := []string{"├── Planned 2 steps", "│   step1: a", "│   step2: b", "└── Composed answer"}
	lines := strings.Split(out, "\n")
	if len(lines) != len(want) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(want), len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"accepted", "SELECT * FROM Track", []string{"Accepted", "SELECT * FROM Track LIMIT 100;"}},
		{"unknown column", "SELECT Cuntry FROM Customer", []string{"UnknownIdentifier at 1:8", "did you mean Country?"}},
		{"write", "DELETE FROM Customer", []string{"WriteOperationBlocked", "(not retryable)"}},
	}

	snap := schematest.Snapshot()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Verdict(&buf, sqlvalidation.Validate(tt.sql, snap, sqlvalidation.Options{})); err != nil {
				t.Fatalf("Verdict failed: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("Expected %q in output:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestSchema(t *testing.T) {
	var buf bytes.Buffer
	snap := schematest.Snapshot()
	if err := Schema(&buf, snap); err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "7 tables") || !strings.Contains(out, snap.Hash()) {
		t.Errorf("Expected the table count and hash in the header:\n%s", out)
	}
	if !strings.Contains(out, "ArtistId -> Artist.ArtistId") {
		t.Errorf("Expected the compact schema:\n%s", out)
	}
}
