package sqlvalidation

import (
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/schema/schematest"
	"github.com/google/go-cmp/cmp"
)

func TestValidate_WriteOperationsBlocked(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		keyword string
	}{
		{"insert", "INSERT INTO Customer (CustomerId) VALUES (99)", "INSERT"},
		{"lower case update", "update Customer set Country = 'X'", "UPDATE"},
		{"delete after comment", "  -- clean up\n  DELETE FROM Customer;", "DELETE"},
		{"mixed case drop after block comment", "/* tidy */ DrOp TABLE Track", "DROP"},
		{"alter", "ALTER TABLE Track ADD COLUMN Rating INTEGER", "ALTER"},
		{"create", "CREATE TABLE x (id INTEGER)", "CREATE"},
		{"pragma", "PRAGMA writable_schema = 1", "PRAGMA"},
		{"parenthesized delete", "(DELETE FROM Customer)", "DELETE"},
		{"data-modifying cte", "WITH gone AS (DELETE FROM Customer RETURNING *) SELECT * FROM gone", "DELETE"},
		{"cte before delete", "WITH x AS (SELECT 1) DELETE FROM Customer", "DELETE"},
		{"select into", "SELECT * INTO backup FROM Customer", "INTO"},
		{"row locks", "SELECT * FROM Customer FOR UPDATE", "FOR UPDATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, schematest.Snapshot(), Options{})
			if v.Accepted {
				t.Fatalf("expected rejection, got accepted %q", v.SQL)
			}
			if v.Reason != WriteOperationBlocked {
				t.Errorf("reason = %s, want %s (%s)", v.Reason, WriteOperationBlocked, v.Message)
			}
			if v.Retryable() {
				t.Error("write rejections must not be retryable")
			}
			if !strings.Contains(v.Message, tt.keyword) {
				t.Errorf("message %q does not name %q", v.Message, tt.keyword)
			}
		})
	}
}

func TestValidate_MultiStatementBlocked(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"two selects", "SELECT 1; SELECT 2"},
		{"stacked write", "SELECT * FROM Track; DELETE FROM Customer"},
		{"stacked write without spaces", "SELECT 1;DROP TABLE Track;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, nil, Options{})
			if v.Accepted || v.Reason != MultiStatementBlocked {
				t.Fatalf("got %+v, want MultiStatementBlocked", v)
			}
			if v.Retryable() {
				t.Error("multi-statement rejections must not be retryable")
			}
		})
	}

	v := Validate("SELECT 1;\nDELETE FROM Customer", nil, Options{})
	if v.Line != 2 || v.Column != 1 {
		t.Errorf("second statement located at %d:%d, want 2:1", v.Line, v.Column)
	}
}

func TestValidate_EmptyStatement(t *testing.T) {
	for _, sql := range []string{"", "   \n\t", "-- just a comment", ";", "/* nothing */ ;;"} {
		v := Validate(sql, nil, Options{})
		if v.Accepted || v.Reason != EmptyStatement {
			t.Errorf("Validate(%q) = %+v, want EmptyStatement", sql, v)
		}
		if !v.Retryable() {
			t.Errorf("Validate(%q): empty statements should be retryable", sql)
		}
	}
}

func TestValidate_Normalization(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		want  string
		noted bool
	}{
		{
			name:  "wildcard gets the default cap",
			sql:   "SELECT * FROM Track;",
			want:  "SELECT * FROM Track LIMIT 100;",
			noted: true,
		},
		{
			name: "existing limit is kept",
			sql:  "SELECT Name FROM Track ORDER BY Milliseconds DESC LIMIT 5",
			want: "SELECT Name FROM Track ORDER BY Milliseconds DESC LIMIT 5;",
		},
		{
			name:  "limit goes before offset",
			sql:   "SELECT Name FROM Track ORDER BY Name OFFSET 10",
			want:  "SELECT Name FROM Track ORDER BY Name LIMIT 100 OFFSET 10;",
			noted: true,
		},
		{
			name:  "subquery limit is not top-level",
			sql:   "SELECT Name FROM Track WHERE TrackId IN (SELECT TrackId FROM InvoiceLine LIMIT 3)",
			want:  "SELECT Name FROM Track WHERE TrackId IN (SELECT TrackId FROM InvoiceLine LIMIT 3) LIMIT 100;",
			noted: true,
		},
		{
			name:  "aggregate still gets a cap",
			sql:   "SELECT COUNT(*) FROM Track",
			want:  "SELECT COUNT(*) FROM Track LIMIT 100;",
			noted: true,
		},
		{
			name:  "comments removed",
			sql:   "-- longest tracks\nSELECT Name /* title */ FROM Track -- done",
			want:  "SELECT Name FROM Track LIMIT 100;",
			noted: true,
		},
		{
			name:  "newlines kept",
			sql:   "SELECT Name\nFROM Track\n",
			want:  "SELECT Name\nFROM Track LIMIT 100;",
			noted: true,
		},
		{
			name:  "cte",
			sql:   "WITH rock AS (SELECT * FROM Track WHERE GenreId = 1) SELECT Name FROM rock",
			want:  "WITH rock AS (SELECT * FROM Track WHERE GenreId = 1) SELECT Name FROM rock LIMIT 100;",
			noted: true,
		},
		{
			name: "semicolon inside a string",
			sql:  "SELECT Name FROM Track WHERE Name = 'a; DELETE FROM Customer' LIMIT 1;",
			want: "SELECT Name FROM Track WHERE Name = 'a; DELETE FROM Customer' LIMIT 1;",
		},
		{
			name: "sqlite limit syntax",
			sql:  "SELECT * FROM Track LIMIT 5, 10",
			want: "SELECT * FROM Track LIMIT 5, 10;",
		},
		{
			name: "sqlite rowid",
			sql:  "SELECT rowid, Name FROM Track LIMIT 2",
			want: "SELECT rowid, Name FROM Track LIMIT 2;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, schematest.Snapshot(), Options{})
			if !v.Accepted {
				t.Fatalf("rejected: %s: %s", v.Reason, v.Message)
			}
			if v.SQL != tt.want {
				t.Errorf("SQL = %q, want %q", v.SQL, tt.want)
			}
			if tt.noted != (len(v.Notes) > 0) {
				t.Errorf("notes = %v, want noted=%v", v.Notes, tt.noted)
			}
		})
	}
}

func TestValidate_RowCapOption(t *testing.T) {
	v := Validate("SELECT Name FROM Artist", nil, Options{RowCap: 25})
	if v.SQL != "SELECT Name FROM Artist LIMIT 25;" {
		t.Errorf("SQL = %q", v.SQL)
	}
}

func TestValidate_UnboundedWildcard(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"distinct", "SELECT DISTINCT * FROM Track"},
		{"union", "SELECT * FROM Album UNION SELECT * FROM Album"},
		{"window", "SELECT *, COUNT(*) OVER () AS total FROM Track"},
		{"group by", "SELECT * FROM Track GROUP BY AlbumId"},
		{"unparsed dialect", "SELECT DISTINCT * FROM `Track`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, schematest.Snapshot(), Options{})
			if v.Accepted || v.Reason != UnboundedWildcard {
				t.Fatalf("got %+v, want UnboundedWildcard", v)
			}
			if !v.Retryable() {
				t.Error("wildcard rejections should be retryable")
			}
		})
	}

	// An explicit limit makes the same shape acceptable
	v := Validate("SELECT DISTINCT * FROM Track LIMIT 10", schematest.Snapshot(), Options{})
	if !v.Accepted {
		t.Errorf("expected acceptance with explicit LIMIT, got %s", v.Reason)
	}
}

func TestValidate_InvalidLimit(t *testing.T) {
	for _, sql := range []string{
		"SELECT Name FROM Track LIMIT ALL",
		"SELECT Name FROM Track LIMIT NULL",
		"SELECT Name FROM Track LIMIT 5 LIMIT 6",
		"SELECT Name FROM Track FETCH FIRST 5 ROWS ONLY",
		"SELECT Name FROM Track LIMIT -1",
		"SELECT Name FROM Track LIMIT (-1)",
		"SELECT Name FROM Track LIMIT -1 OFFSET 10",
		"SELECT Name FROM Track LIMIT 0, -1",
		"SELECT Name FROM Track LIMIT 10, ALL",
	} {
		v := Validate(sql, schematest.Snapshot(), Options{})
		if v.Accepted || v.Reason != InvalidLimit {
			t.Errorf("Validate(%q) = %+v, want InvalidLimit", sql, v)
		}
	}
}

func TestValidate_BoundedLimitKept(t *testing.T) {
	for _, sql := range []string{
		"SELECT Name FROM Track LIMIT 5",
		"SELECT Name FROM Track LIMIT 5 OFFSET 10",
		"SELECT Name FROM Track LIMIT 10, 5",
		"SELECT Name FROM Track WHERE Milliseconds > -1 LIMIT 5",
		"SELECT Name FROM Track WHERE TrackId IN (SELECT TrackId FROM Track LIMIT 0, 3) LIMIT 5",
	} {
		v := Validate(sql, schematest.Snapshot(), Options{})
		if !v.Accepted {
			t.Errorf("Validate(%q) rejected: %s %s", sql, v.Reason, v.Message)
			continue
		}
		if v.SQL != sql+";" {
			t.Errorf("Validate(%q).SQL = %q, want the query unchanged", sql, v.SQL)
		}
	}
}

func TestValidate_UnknownIdentifier(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		unknown     []string
		suggestions []Suggestion
	}{
		{
			name:        "misspelled column",
			sql:         "SELECT Cuntry FROM Customer",
			unknown:     []string{"Cuntry"},
			suggestions: []Suggestion{{Identifier: "Cuntry", Candidates: []string{"Country"}}},
		},
		{
			name:        "misspelled table",
			sql:         "SELECT * FROM Tracks",
			unknown:     []string{"Tracks"},
			suggestions: []Suggestion{{Identifier: "Tracks", Candidates: []string{"Track"}}},
		},
		{
			name:        "qualified through alias",
			sql:         "SELECT c.Cuntry FROM Customer c",
			unknown:     []string{"c.Cuntry"},
			suggestions: []Suggestion{{Identifier: "c.Cuntry", Candidates: []string{"Country"}}},
		},
		{
			name:        "column from the wrong table",
			sql:         "SELECT a.Title, a.Composer FROM Album a",
			unknown:     []string{"a.Composer"},
			suggestions: []Suggestion{{Identifier: "a.Composer"}},
		},
		{
			name:        "unknown qualifier",
			sql:         "SELECT x.Name FROM Artist a",
			unknown:     []string{"x.Name"},
			suggestions: []Suggestion{{Identifier: "x.Name"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, schematest.Snapshot(), Options{})
			if v.Accepted || v.Reason != UnknownIdentifier {
				t.Fatalf("got %+v, want UnknownIdentifier", v)
			}
			if !v.Retryable() {
				t.Error("unknown identifiers should be retryable")
			}
			if diff := cmp.Diff(tt.unknown, v.Unknown); diff != "" {
				t.Errorf("unknown mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.suggestions, v.Suggestions); diff != "" {
				t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
			}
		})
	}

	v := Validate("SELECT FirstName,\n       Cuntry FROM Customer", schematest.Snapshot(), Options{})
	if v.Line != 2 || v.Column != 8 {
		t.Errorf("unknown column located at %d:%d, want 2:8", v.Line, v.Column)
	}
	if !strings.Contains(v.Message, "did you mean Country?") {
		t.Errorf("message %q lacks a suggestion", v.Message)
	}
}

func TestValidate_KnownIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"case insensitive", "select country from customer"},
		{"output alias", "SELECT FirstName AS fn FROM Customer ORDER BY fn"},
		{"join with aliases", "SELECT a.Name, al.Title FROM Artist a JOIN Album al ON al.ArtistId = a.ArtistId"},
		{"table name qualifier", "SELECT Track.Name FROM Track"},
		{"correlated subquery", "SELECT c.FirstName FROM Customer c WHERE EXISTS (SELECT 1 FROM Invoice i WHERE i.CustomerId = c.CustomerId)"},
		{"system catalog", "SELECT name FROM sqlite_master WHERE type = 'table'"},
		{"cte columns are opaque", "WITH totals AS (SELECT AlbumId, COUNT(*) AS n FROM Track GROUP BY AlbumId) SELECT AlbumId, n FROM totals"},
		{"subquery in from", "SELECT t.x FROM (SELECT Name AS x FROM Track) t"},
		{"using join", "SELECT Name, Title FROM Album JOIN Artist USING (ArtistId)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql, schematest.Snapshot(), Options{})
			if !v.Accepted {
				t.Errorf("rejected: %s: %s", v.Reason, v.Message)
			}
		})
	}
}

func TestValidate_NilSnapshotSkipsIdentifierChecks(t *testing.T) {
	v := Validate("SELECT Cuntry FROM Customer", nil, Options{})
	if !v.Accepted {
		t.Fatalf("rejected: %s", v.Message)
	}
	if v.SQL != "SELECT Cuntry FROM Customer LIMIT 100;" {
		t.Errorf("SQL = %q", v.SQL)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	inputs := []string{
		"SELECT * FROM Track;",
		"-- comment\nSELECT Name FROM Track ORDER BY Name OFFSET 10",
		"WITH rock AS (SELECT * FROM Track) SELECT Name FROM rock",
		"SELECT Name FROM Track WHERE Name LIKE '%;%' LIMIT 3",
		"SELECT COUNT(*) AS n FROM Invoice /* total */",
		"(SELECT Name FROM Artist)",
	}

	for _, in := range inputs {
		first := Validate(in, schematest.Snapshot(), Options{})
		if !first.Accepted {
			t.Fatalf("Validate(%q) rejected: %s", in, first.Message)
		}
		second := Validate(first.SQL, schematest.Snapshot(), Options{})
		if !second.Accepted || second.SQL != first.SQL {
			t.Errorf("not idempotent: %q -> %q -> %q", in, first.SQL, second.SQL)
		}
		if len(second.Notes) != 0 {
			t.Errorf("second pass applied normalizations: %v", second.Notes)
		}
	}
}

func TestValidate_ExactlyOneTopLevelLimit(t *testing.T) {
	inputs := []string{
		"SELECT * FROM Track",
		"SELECT Name FROM Track LIMIT 7",
		"SELECT Name FROM Track WHERE AlbumId IN (SELECT AlbumId FROM Album LIMIT 2)",
		"SELECT Name FROM Artist UNION SELECT Name FROM Genre",
		"WITH a AS (SELECT Name FROM Artist LIMIT 1) SELECT Name FROM a OFFSET 1",
	}

	for _, in := range inputs {
		v := Validate(in, schematest.Snapshot(), Options{})
		if !v.Accepted {
			t.Fatalf("Validate(%q) rejected: %s", in, v.Message)
		}
		count := 0
		for _, tok := range tokenize(v.SQL) {
			if tok.depth == 0 && tok.is("LIMIT") {
				count++
			}
		}
		if count != 1 {
			t.Errorf("%q has %d top-level LIMIT clauses", v.SQL, count)
		}
		if !strings.HasSuffix(v.SQL, ";") || strings.Count(v.SQL, ";") != 1 {
			t.Errorf("%q is not terminated by exactly one semicolon", v.SQL)
		}
	}
}

func TestReasonRetryable(t *testing.T) {
	tests := []struct {
		reason Reason
		want   bool
	}{
		{EmptyStatement, true},
		{MultiStatementBlocked, false},
		{WriteOperationBlocked, false},
		{UnknownIdentifier, true},
		{UnboundedWildcard, true},
		{InvalidLimit, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
