package sqlvalidation

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/askdb/askdb/internal/schema"
)

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "total": true,
	"group_concat": true, "string_agg": true, "array_agg": true, "json_agg": true,
	"json_group_array": true, "json_group_object": true, "bool_and": true, "bool_or": true,
	"every": true, "stddev": true, "variance": true,
}

// Columns every SQLite or Postgres table has without declaring them
var implicitColumns = map[string]bool{
	"rowid": true, "oid": true, "_rowid_": true, "ctid": true,
}

type relation struct {
	schema string
	name   string
	alias  string
}

type columnRef struct {
	qualifier string // table name or alias; empty when unqualified
	name      string
}

// analysis is what the validator needs to know from a parse tree.
type analysis struct {
	write     string // first data-modifying construct found, if any
	relations []relation
	ctes      map[string]bool
	derived   bool // a subquery, CTE or table function supplies rows
	columns   []columnRef
	aliases   map[string]bool // output column names
	wildcard  bool            // top-level select list has an unqualified *
	fullScan  bool            // top-level query groups, aggregates, windows, dedups or combines sets
}

func analyze(tree *pg_query.ParseResult) *analysis {
	a := &analysis{ctes: map[string]bool{}, aliases: map[string]bool{}}

	walk(tree.ProtoReflect(), func(m proto.Message) {
		switch n := m.(type) {
		case *pg_query.InsertStmt:
			a.noteWrite("INSERT")
		case *pg_query.UpdateStmt:
			a.noteWrite("UPDATE")
		case *pg_query.DeleteStmt:
			a.noteWrite("DELETE")
		case *pg_query.MergeStmt:
			a.noteWrite("MERGE")
		case *pg_query.SelectStmt:
			if n.IntoClause != nil {
				a.noteWrite("SELECT ... INTO")
			}
		case *pg_query.CommonTableExpr:
			a.ctes[strings.ToLower(n.Ctename)] = true
			a.derived = true
		case *pg_query.RangeSubselect, *pg_query.RangeFunction, *pg_query.RangeTableFunc:
			a.derived = true
		case *pg_query.RangeVar:
			a.relations = append(a.relations, relation{
				schema: n.Schemaname,
				name:   n.Relname,
				alias:  n.GetAlias().GetAliasname(),
			})
		case *pg_query.ColumnRef:
			if ref, ok := columnRefOf(n); ok {
				a.columns = append(a.columns, ref)
			}
		case *pg_query.ResTarget:
			if n.Name != "" {
				a.aliases[strings.ToLower(n.Name)] = true
			}
		}
	})

	if len(tree.Stmts) > 0 {
		if sel := tree.Stmts[0].GetStmt().GetSelectStmt(); sel != nil {
			a.wildcard, a.fullScan = selectShape(sel)
		}
	}

	return a
}

func (a *analysis) noteWrite(kind string) {
	if a.write == "" {
		a.write = kind
	}
}

// walk visits every message in the tree, depth first.
func walk(m protoreflect.Message, visit func(proto.Message)) {
	visit(m.Interface())
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Kind() != protoreflect.MessageKind && fd.Kind() != protoreflect.GroupKind {
			return true
		}
		switch {
		case fd.IsList():
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				walk(list.Get(i).Message(), visit)
			}
		case fd.IsMap():
		default:
			walk(v.Message(), visit)
		}
		return true
	})
}

// columnRefOf returns the qualifier and name of a column reference. Star
// references (*, t.*) are not columns.
func columnRefOf(n *pg_query.ColumnRef) (columnRef, bool) {
	var parts []string
	for _, f := range n.Fields {
		if f.GetAStar() != nil {
			return columnRef{}, false
		}
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.Sval)
		}
	}

	switch len(parts) {
	case 0:
		return columnRef{}, false
	case 1:
		return columnRef{name: parts[0]}, true
	default:
		return columnRef{qualifier: parts[len(parts)-2], name: parts[len(parts)-1]}, true
	}
}

// selectShape reports whether the top-level select list has an unqualified *
// and whether the query needs every row to produce its result.
func selectShape(sel *pg_query.SelectStmt) (wildcard, fullScan bool) {
	if sel == nil {
		return false, false
	}
	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		lw, _ := selectShape(sel.Larg)
		rw, _ := selectShape(sel.Rarg)
		return lw || rw, true
	}

	fullScan = len(sel.GroupClause) > 0 || sel.HavingClause != nil || len(sel.DistinctClause) > 0 || len(sel.WindowClause) > 0

	for _, target := range sel.TargetList {
		rt := target.GetResTarget()
		if rt == nil {
			continue
		}
		if cr := rt.GetVal().GetColumnRef(); cr != nil && len(cr.Fields) == 1 && cr.Fields[0].GetAStar() != nil {
			wildcard = true
		}
		if rt.Val != nil && hasAggregate(rt.Val) {
			fullScan = true
		}
	}

	return wildcard, fullScan
}

func hasAggregate(n *pg_query.Node) bool {
	found := false
	walk(n.ProtoReflect(), func(m proto.Message) {
		fc, ok := m.(*pg_query.FuncCall)
		if !ok {
			return
		}
		if fc.Over != nil || fc.AggStar {
			found = true
			return
		}
		if len(fc.Funcname) > 0 {
			last := fc.Funcname[len(fc.Funcname)-1].GetString_().GetSval()
			if aggregateFuncs[strings.ToLower(last)] && !(isMinMax(last) && len(fc.Args) > 1) {
				found = true
			}
		}
	})
	return found
}

// SQLite's two-argument min/max are scalar functions
func isMinMax(name string) bool {
	return strings.EqualFold(name, "min") || strings.EqualFold(name, "max")
}

func isSystemRelation(r relation) bool {
	schemaName := strings.ToLower(r.schema)
	name := strings.ToLower(r.name)
	return schemaName == "pg_catalog" || schemaName == "information_schema" ||
		strings.HasPrefix(name, "sqlite_") || strings.HasPrefix(name, "pg_")
}

// checkIdentifiers rejects relations and columns the snapshot does not know.
// Unknown relations are reported first; columns are only checked once every
// relation resolves and no derived source could supply extra columns.
func checkIdentifiers(src string, stmt statement, a *analysis, snap *schema.Snapshot) (Verdict, bool) {
	scope := map[string]string{} // lower(name or alias) -> table name
	var scopeTables []string
	var unknown []Suggestion
	seen := map[string]bool{}
	opaque := a.derived

	add := func(ident string, candidates []string) {
		ident = originalCase(stmt, ident)
		key := strings.ToLower(ident)
		if seen[key] {
			return
		}
		seen[key] = true
		unknown = append(unknown, Suggestion{Identifier: ident, Candidates: candidates})
	}

	for _, r := range a.relations {
		if r.schema == "" && a.ctes[strings.ToLower(r.name)] {
			continue
		}
		if isSystemRelation(r) {
			opaque = true
			continue
		}
		t, ok := snap.Table(r.name)
		if !ok {
			add(r.name, snap.ClosestTables(r.name))
			continue
		}
		scope[strings.ToLower(t.Name)] = t.Name
		if r.alias != "" {
			scope[strings.ToLower(r.alias)] = t.Name
		}
		scopeTables = append(scopeTables, t.Name)
	}

	if len(unknown) == 0 && !opaque {
		for _, c := range a.columns {
			if c.qualifier != "" {
				table, ok := scope[strings.ToLower(c.qualifier)]
				if !ok {
					add(c.qualifier+"."+c.name, nil)
					continue
				}
				if !snap.HasColumn(table, c.name) && !implicitColumns[strings.ToLower(c.name)] {
					add(c.qualifier+"."+c.name, snap.ClosestColumns(c.name, table))
				}
				continue
			}

			lower := strings.ToLower(c.name)
			if a.aliases[lower] || implicitColumns[lower] {
				continue
			}
			found := false
			for _, t := range scopeTables {
				if snap.HasColumn(t, c.name) {
					found = true
					break
				}
			}
			if !found {
				add(c.name, snap.ClosestColumns(c.name, scopeTables...))
			}
		}
	}

	if len(unknown) == 0 {
		return Verdict{}, true
	}

	v := reject(UnknownIdentifier, unknownMessage(unknown))
	v.Suggestions = unknown
	for _, u := range unknown {
		v.Unknown = append(v.Unknown, u.Identifier)
	}
	if tok, ok := findIdentifier(stmt, unknown[0].Identifier); ok {
		v.locate(src, tok)
	}
	return v, false
}

func unknownMessage(unknown []Suggestion) string {
	parts := make([]string, 0, len(unknown))
	for _, u := range unknown {
		if len(u.Candidates) > 0 {
			parts = append(parts, fmt.Sprintf("%s (did you mean %s?)", u.Identifier, strings.Join(u.Candidates, ", ")))
		} else {
			parts = append(parts, u.Identifier)
		}
	}
	return "unknown identifier: " + strings.Join(parts, "; ")
}

// originalCase restores the spelling the statement used for each dotted part
// of ident; the parser folds unquoted identifiers to lower case.
func originalCase(stmt statement, ident string) string {
	parts := strings.Split(ident, ".")
	for i, part := range parts {
		if tok, ok := findIdentifier(stmt, part); ok && tok.kind == tokenWord {
			parts[i] = tok.text
		}
	}
	return strings.Join(parts, ".")
}

// findIdentifier locates the last dotted part of ident among the statement's tokens.
func findIdentifier(stmt statement, ident string) (token, bool) {
	name := ident
	if i := strings.LastIndex(ident, "."); i >= 0 {
		name = ident[i+1:]
	}
	for _, tok := range stmt.tokens {
		text := tok.text
		if tok.kind == tokenQuoted && len(text) >= 2 {
			text = text[1 : len(text)-1]
		}
		if (tok.kind == tokenWord || tok.kind == tokenQuoted) && strings.EqualFold(text, name) {
			return tok, true
		}
	}
	return token{}, false
}
