package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/askdb/askdb/database"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseDDL reads table and view descriptors out of a PostgreSQL-dialect DDL
// script. CREATE TABLE, CREATE VIEW and ALTER TABLE ... ADD CONSTRAINT are
// understood; every other statement is skipped.
func ParseDDL(sql string) ([]database.Table, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DDL: %w", err)
	}

	d := &ddlReader{index: make(map[string]int)}
	for _, raw := range tree.GetStmts() {
		if err := d.statement(raw.GetStmt()); err != nil {
			return nil, err
		}
	}
	return d.tables, nil
}

// ddlReader accumulates tables in declaration order.
type ddlReader struct {
	tables []database.Table
	index  map[string]int
}

func (d *ddlReader) statement(n *pg_query.Node) error {
	switch {
	case n.GetCreateStmt() != nil:
		return d.createTable(n.GetCreateStmt())
	case n.GetViewStmt() != nil:
		return d.createView(n.GetViewStmt())
	case n.GetAlterTableStmt() != nil:
		d.alterTable(n.GetAlterTableStmt())
	}
	return nil
}

func (d *ddlReader) add(t database.Table) {
	d.index[strings.ToLower(t.Name)] = len(d.tables)
	d.tables = append(d.tables, t)
}

func (d *ddlReader) lookup(name string) *database.Table {
	i, ok := d.index[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return &d.tables[i]
}

func (d *ddlReader) createTable(stmt *pg_query.CreateStmt) error {
	name := stmt.GetRelation().GetRelname()
	if name == "" {
		return fmt.Errorf("CREATE TABLE without a name")
	}
	t := database.Table{Name: name, Columns: []database.Column{}}

	var constraints []*pg_query.Constraint
	for _, elt := range stmt.GetTableElts() {
		if def := elt.GetColumnDef(); def != nil {
			col, inline := columnFromDef(def)
			if col.Name == "" {
				return fmt.Errorf("table %s: column without a name", name)
			}
			t.Columns = append(t.Columns, col)
			constraints = append(constraints, inline...)
			continue
		}
		if c := elt.GetConstraint(); c != nil {
			constraints = append(constraints, c)
		}
	}

	for _, c := range constraints {
		applyConstraint(&t, c)
	}
	d.add(t)
	return nil
}

// createView lists a view's output columns. Their types are unknown without
// planning the query, so they are left empty.
func (d *ddlReader) createView(stmt *pg_query.ViewStmt) error {
	name := stmt.GetView().GetRelname()
	if name == "" {
		return fmt.Errorf("CREATE VIEW without a name")
	}
	names := strValues(stmt.GetAliases())
	if len(names) == 0 {
		for _, target := range stmt.GetQuery().GetSelectStmt().GetTargetList() {
			if col := outputName(target.GetResTarget()); col != "" {
				names = append(names, col)
			}
		}
	}

	t := database.Table{Name: name, Columns: make([]database.Column, 0, len(names))}
	for _, col := range names {
		t.Columns = append(t.Columns, database.Column{Name: col, Nullable: true})
	}
	d.add(t)
	return nil
}

// outputName is the column name PostgreSQL gives a select-list entry, or ""
// for a star or an unnamed expression.
func outputName(rt *pg_query.ResTarget) string {
	if rt == nil {
		return ""
	}
	if rt.GetName() != "" {
		return rt.GetName()
	}
	if ref := rt.GetVal().GetColumnRef(); ref != nil {
		fields := ref.GetFields()
		if len(fields) > 0 {
			return fields[len(fields)-1].GetString_().GetSval()
		}
	}
	if fn := rt.GetVal().GetFuncCall(); fn != nil {
		parts := strValues(fn.GetFuncname())
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}
	return ""
}

func (d *ddlReader) alterTable(stmt *pg_query.AlterTableStmt) {
	t := d.lookup(stmt.GetRelation().GetRelname())
	if t == nil {
		return
	}
	for _, n := range stmt.GetCmds() {
		cmd := n.GetAlterTableCmd()
		if cmd.GetSubtype() != pg_query.AlterTableType_AT_AddConstraint {
			continue
		}
		if c := cmd.GetDef().GetConstraint(); c != nil {
			applyConstraint(t, c)
		}
	}
}

// columnFromDef reads a column definition. Inline PRIMARY KEY and REFERENCES
// constraints are returned rewritten as table-level ones.
func columnFromDef(def *pg_query.ColumnDef) (database.Column, []*pg_query.Constraint) {
	col := database.Column{
		Name:     def.GetColname(),
		Type:     typeString(def.GetTypeName()),
		Nullable: true,
	}

	var lifted []*pg_query.Constraint
	key := []*pg_query.Node{pg_query.MakeStrNode(col.Name)}
	for _, n := range def.GetConstraints() {
		c := n.GetConstraint()
		switch c.GetContype() {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.Nullable = false
		case pg_query.ConstrType_CONSTR_NULL:
			col.Nullable = true
		case pg_query.ConstrType_CONSTR_DEFAULT:
			if expr, ok := deparseExpr(c.GetRawExpr()); ok {
				col.Default = &expr
			}
		case pg_query.ConstrType_CONSTR_PRIMARY:
			lifted = append(lifted, &pg_query.Constraint{Contype: c.GetContype(), Keys: key})
		case pg_query.ConstrType_CONSTR_FOREIGN:
			lifted = append(lifted, &pg_query.Constraint{
				Contype: c.GetContype(),
				Conname: c.GetConname(),
				Pktable: c.GetPktable(),
				FkAttrs: key,
				PkAttrs: c.GetPkAttrs(),
			})
		}
	}
	return col, lifted
}

// applyConstraint records a PRIMARY KEY or FOREIGN KEY on t. An omitted
// referenced column list is kept as empty names, which the snapshot resolves
// to the parent's primary key.
func applyConstraint(t *database.Table, c *pg_query.Constraint) {
	switch c.GetContype() {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		for _, key := range strValues(c.GetKeys()) {
			for i := range t.Columns {
				if t.Columns[i].Name == key {
					t.Columns[i].IsPrimaryKey = true
					t.Columns[i].Nullable = false
				}
			}
		}

	case pg_query.ConstrType_CONSTR_FOREIGN:
		parent := c.GetPktable().GetRelname()
		if parent == "" {
			return
		}
		from := strValues(c.GetFkAttrs())
		to := strValues(c.GetPkAttrs())
		if len(to) == 0 {
			to = make([]string, len(from))
		}
		name := c.GetConname()
		if name == "" {
			name = fmt.Sprintf("fk_%s_%d", t.Name, len(t.ForeignKeys))
		}
		t.ForeignKeys = append(t.ForeignKeys, database.ForeignKey{
			Name:              name,
			Columns:           from,
			ReferencedTable:   parent,
			ReferencedColumns: to,
		})
	}
}

func strValues(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.GetSval())
		}
	}
	return out
}

// builtinTypes spells the parser's internal type names the way they are
// usually written in DDL.
var builtinTypes = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"bool":        "boolean",
	"bpchar":      "char",
	"float4":      "real",
	"float8":      "double precision",
	"timestamptz": "timestamp with time zone",
	"timetz":      "time with time zone",
}

// typeString renders a declared type, keeping modifiers and array brackets:
// varchar(120), numeric(10,2), text[].
func typeString(tn *pg_query.TypeName) string {
	names := strValues(tn.GetNames())
	if len(names) == 0 {
		return ""
	}
	base := names[len(names)-1]
	if len(names) > 1 && names[0] != "pg_catalog" {
		base = strings.Join(names, ".")
	}
	if spelled, ok := builtinTypes[strings.ToLower(base)]; ok {
		base = spelled
	}

	var mods []string
	for _, m := range tn.GetTypmods() {
		if iv := m.GetAConst().GetIval(); iv != nil {
			mods = append(mods, strconv.Itoa(int(iv.GetIval())))
		}
	}
	if len(mods) > 0 {
		base += "(" + strings.Join(mods, ",") + ")"
	}
	return base + strings.Repeat("[]", len(tn.GetArrayBounds()))
}

// deparseExpr prints an expression by deparsing it as the only target of a
// SELECT.
func deparseExpr(expr *pg_query.Node) (string, bool) {
	if expr == nil {
		return "", false
	}
	sel := &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{pg_query.MakeResTargetNodeWithVal(expr, 0)},
	}
	out, err := pg_query.Deparse(&pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}}}},
	})
	if err != nil {
		return "", false
	}
	return strings.TrimPrefix(out, "SELECT "), true
}
