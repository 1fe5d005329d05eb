// Package sqlvalidation decides whether a generated SQL statement may run.
//
// Validate is a pure function: it never touches a database. It accepts a
// single read-only SELECT (or WITH ... SELECT) and returns it normalized with
// comments removed, a top-level row cap, and a trailing semicolon. Anything
// else is rejected with a Reason the correction loop can act on.
package sqlvalidation

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/askdb/askdb/internal/schema"
)

// DefaultRowCap is the LIMIT appended to queries that have none.
const DefaultRowCap = 100

// Reason classifies a rejected statement.
type Reason string

const (
	EmptyStatement        Reason = "EmptyStatement"
	MultiStatementBlocked Reason = "MultiStatementBlocked"
	WriteOperationBlocked Reason = "WriteOperationBlocked"
	UnknownIdentifier     Reason = "UnknownIdentifier"
	UnboundedWildcard     Reason = "UnboundedWildcard"
	InvalidLimit          Reason = "InvalidLimit"
)

// Retryable reports whether a regenerated statement could pass. Safety
// rejections are final.
func (r Reason) Retryable() bool {
	switch r {
	case MultiStatementBlocked, WriteOperationBlocked:
		return false
	default:
		return true
	}
}

// Suggestion pairs an unknown identifier with the closest valid names.
type Suggestion struct {
	Identifier string   `json:"identifier"`
	Candidates []string `json:"candidates,omitempty"`
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	SQL      string `json:"sql,omitempty"` // normalized; set only when accepted
	Reason   Reason `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
	// Unknown holds the identifiers behind an UnknownIdentifier rejection.
	Unknown     []string     `json:"unknown,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	// Notes lists the normalizations applied to an accepted statement.
	Notes []string `json:"notes,omitempty"`
	// AppendedLimit is the row cap added to a statement that had no LIMIT.
	AppendedLimit int `json:"appended_limit,omitempty"`
	// Line and Column locate the offending token in the input, when known.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// Retryable reports whether a rejected verdict may be corrected.
func (v Verdict) Retryable() bool {
	return !v.Accepted && v.Reason.Retryable()
}

// Options tunes validation.
type Options struct {
	// RowCap is the LIMIT appended when the statement has none. Zero means DefaultRowCap.
	RowCap int
}

func (o Options) rowCap() int {
	if o.RowCap > 0 {
		return o.RowCap
	}
	return DefaultRowCap
}

// Validate checks a SQL statement against the safety rules and, when snap is
// non-nil, against the schema. The checks run in a fixed order: empty input,
// statement count, write operations, identifiers, then the row cap.
func Validate(sqlText string, snap *schema.Snapshot, opts Options) Verdict {
	tokens := tokenize(sqlText)
	statements := splitStatements(sqlText, tokens)

	switch {
	case len(statements) == 0:
		return reject(EmptyStatement, "no SQL statement found")
	case len(statements) > 1:
		v := reject(MultiStatementBlocked,
			fmt.Sprintf("found %d statements; only a single SELECT statement may run", len(statements)))
		v.locate(sqlText, statements[1].tokens[0])
		return v
	}

	stmt := statements[0]

	if v, blocked := checkLexicalWrites(sqlText, stmt); blocked {
		return v
	}

	// Text outside the Postgres grammar (SQLite dialect) skips the AST checks;
	// the database reports real syntax errors at execution
	var a *analysis
	if tree, err := pg_query.Parse(stmt.text); err == nil {
		a = analyze(tree)
	}

	if a != nil {
		if a.write != "" {
			return reject(WriteOperationBlocked,
				fmt.Sprintf("%s is not allowed; only read-only SELECT queries can run", a.write))
		}
		if snap != nil {
			if v, ok := checkIdentifiers(sqlText, stmt, a, snap); !ok {
				return v
			}
		}
	}

	return applyRowCap(sqlText, stmt, a, opts.rowCap())
}

func reject(reason Reason, message string) Verdict {
	return Verdict{Reason: reason, Message: message}
}

func (v *Verdict) locate(src string, tok token) {
	v.Line, v.Column = position(src, tok.start)
}

var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "REPLACE": true,
}

// checkLexicalWrites applies the checks that need no parse tree: the leading
// keyword, the main verb after a WITH clause, SELECT ... INTO and row locks.
func checkLexicalWrites(src string, stmt statement) (Verdict, bool) {
	lead := leadingToken(stmt)
	if lead == nil {
		return reject(EmptyStatement, "no SQL statement found"), true
	}

	if !lead.is("SELECT") && !lead.is("WITH") {
		v := reject(WriteOperationBlocked,
			fmt.Sprintf("%s statements are not allowed; only read-only SELECT queries can run", strings.ToUpper(lead.text)))
		v.locate(src, *lead)
		return v, true
	}

	for k, tok := range stmt.tokens {
		if tok.depth != 0 || tok.kind != tokenWord {
			continue
		}
		word := strings.ToUpper(tok.text)

		switch {
		case lead.is("WITH") && writeVerbs[word]:
			v := reject(WriteOperationBlocked,
				fmt.Sprintf("WITH ... %s is not allowed; only read-only SELECT queries can run", word))
			v.locate(src, tok)
			return v, true

		case word == "INTO":
			v := reject(WriteOperationBlocked, "SELECT ... INTO is not allowed; only read-only SELECT queries can run")
			v.locate(src, tok)
			return v, true

		case word == "FOR" && k+1 < len(stmt.tokens):
			next := stmt.tokens[k+1]
			if next.is("UPDATE") || next.is("SHARE") || next.is("NO") || next.is("KEY") {
				v := reject(WriteOperationBlocked, "row locking clauses (FOR UPDATE/SHARE) are not allowed")
				v.locate(src, tok)
				return v, true
			}
		}

		// The first main verb ends the WITH clause; later words are the query body
		if lead.is("WITH") && word == "SELECT" {
			lead = &stmt.tokens[k]
		}
	}

	return Verdict{}, false
}

// leadingToken returns the first token after any opening parentheses.
func leadingToken(stmt statement) *token {
	for i := range stmt.tokens {
		if !stmt.tokens[i].isSymbol("(") {
			return &stmt.tokens[i]
		}
	}
	return nil
}

// applyRowCap ensures exactly one top-level LIMIT and finishes normalization.
func applyRowCap(src string, stmt statement, a *analysis, rowCap int) Verdict {
	var limits []token
	var insertAt *token

	for k, tok := range stmt.tokens {
		if tok.depth != 0 {
			continue
		}
		switch {
		case tok.is("LIMIT"):
			limits = append(limits, tok)
			if escape := limitEscape(stmt.tokens, k); escape != "" {
				v := reject(InvalidLimit, escape+" removes the row cap; use LIMIT <n>")
				v.locate(src, tok)
				return v
			}
		case tok.is("FETCH"):
			v := reject(InvalidLimit, "use LIMIT <n> instead of FETCH FIRST")
			v.locate(src, tok)
			return v
		case (tok.is("OFFSET") || tok.is("FOR")) && insertAt == nil:
			insertAt = &stmt.tokens[k]
		}
	}

	text := strings.TrimSpace(stmt.text)

	switch {
	case len(limits) > 1:
		v := reject(InvalidLimit, "query has more than one top-level LIMIT clause")
		v.locate(src, limits[1])
		return v

	case len(limits) == 1:
		return Verdict{Accepted: true, SQL: text + ";"}
	}

	wildcard, fullScan := lexicalShape(stmt)
	if a != nil {
		wildcard, fullScan = a.wildcard, a.fullScan
	}
	if wildcard && fullScan {
		return reject(UnboundedWildcard,
			"SELECT * without LIMIT in a grouped, aggregated, distinct or combined query; list explicit columns")
	}

	limit := "LIMIT " + strconv.Itoa(rowCap)
	if insertAt != nil {
		head, tail := splitAtToken(stmt, *insertAt)
		text = strings.TrimRight(head, " \t\r\n") + " " + limit + " " + tail
	} else {
		text += " " + limit
	}

	return Verdict{
		Accepted:      true,
		SQL:           text + ";",
		Notes:         []string{fmt.Sprintf("appended %s", limit)},
		AppendedLimit: rowCap,
	}
}

// limitEscape describes a LIMIT at tokens[k] that bounds nothing: LIMIT ALL,
// LIMIT NULL or a negative count, which SQLite reads as no limit. Both
// LIMIT <n> and the LIMIT <offset>, <n> form are checked. It returns "" for a
// bounding LIMIT.
func limitEscape(tokens []token, k int) string {
	operand := func(j int) string {
		for j < len(tokens) && tokens[j].isSymbol("(") {
			j++
		}
		if j >= len(tokens) {
			return ""
		}
		switch t := tokens[j]; {
		case t.is("ALL"), t.is("NULL"):
			return "LIMIT " + strings.ToUpper(t.text)
		case t.isSymbol("-"):
			return "a negative LIMIT"
		}
		return ""
	}

	if escape := operand(k + 1); escape != "" {
		return escape
	}
	depth := tokens[k].depth
	for j := k + 1; j < len(tokens); j++ {
		t := tokens[j]
		if t.depth != depth {
			continue
		}
		if t.is("OFFSET") || t.is("FOR") {
			break
		}
		if t.isSymbol(",") {
			return operand(j + 1)
		}
	}
	return ""
}

// splitAtToken splits the statement text just before tok.
func splitAtToken(stmt statement, tok token) (string, string) {
	for k, t := range stmt.tokens {
		if t.start == tok.start {
			return stmt.text[:stmt.offsets[k]], stmt.text[stmt.offsets[k]:]
		}
	}
	return stmt.text, ""
}

// lexicalShape approximates the query shape when no parse tree is available.
func lexicalShape(stmt statement) (wildcard, fullScan bool) {
	seenSelect := false
	for k, tok := range stmt.tokens {
		if tok.depth != 0 {
			continue
		}
		switch {
		case tok.is("SELECT") && !seenSelect:
			seenSelect = true
			j := k + 1
			for j < len(stmt.tokens) && (stmt.tokens[j].is("DISTINCT") || stmt.tokens[j].is("ALL")) {
				if stmt.tokens[j].is("DISTINCT") {
					fullScan = true
				}
				j++
			}
			if j < len(stmt.tokens) && stmt.tokens[j].isSymbol("*") {
				wildcard = true
			}
		case tok.is("UNION"), tok.is("INTERSECT"), tok.is("EXCEPT"), tok.is("GROUP"),
			tok.is("HAVING"), tok.is("DISTINCT"), tok.is("OVER"), tok.is("WINDOW"):
			fullScan = true
		case tok.kind == tokenWord && aggregateFuncs[strings.ToLower(tok.text)] &&
			k+1 < len(stmt.tokens) && stmt.tokens[k+1].isSymbol("("):
			fullScan = true
		}
	}
	return wildcard, fullScan
}
