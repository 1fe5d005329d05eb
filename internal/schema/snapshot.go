// Package schema holds the immutable schema snapshot that the planner, the
// validator and the generation prompts read from.
package schema

import (
	"sort"
	"strings"
	"time"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/internal/strutil"
)

// Edge is one foreign-key column pair: Table.Column references RefTable.RefColumn.
type Edge struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Snapshot is a read-only view of a database's structure. All lookups are
// case-insensitive. A Snapshot is never mutated after New returns, so it can be
// shared freely between goroutines.
type Snapshot struct {
	tables  []database.Table
	byName  map[string]int
	edges   []Edge
	hash    string
	builtAt time.Time
}

// New builds a snapshot from table descriptors. The input is deep-copied.
func New(tables []database.Table) *Snapshot {
	s := &Snapshot{
		tables:  make([]database.Table, 0, len(tables)),
		byName:  make(map[string]int, len(tables)),
		builtAt: time.Now(),
	}

	for _, t := range tables {
		s.tables = append(s.tables, copyTable(t))
	}
	sort.SliceStable(s.tables, func(i, j int) bool {
		return strings.ToLower(s.tables[i].Name) < strings.ToLower(s.tables[j].Name)
	})
	for i, t := range s.tables {
		s.byName[strings.ToLower(t.Name)] = i
	}

	for ti := range s.tables {
		t := &s.tables[ti]
		for fi := range t.ForeignKeys {
			fk := &t.ForeignKeys[fi]
			for ci, col := range fk.Columns {
				ref := ""
				if ci < len(fk.ReferencedColumns) {
					ref = fk.ReferencedColumns[ci]
				}
				// SQLite leaves the target column empty when it is the parent's primary key
				if ref == "" {
					ref = s.primaryKey(fk.ReferencedTable)
					if ci < len(fk.ReferencedColumns) {
						fk.ReferencedColumns[ci] = ref
					}
				}
				s.edges = append(s.edges, Edge{
					Table:     t.Name,
					Column:    col,
					RefTable:  s.canonicalName(fk.ReferencedTable),
					RefColumn: ref,
				})
			}
		}
	}

	s.hash = computeHash(s.tables)
	return s
}

func copyTable(t database.Table) database.Table {
	out := database.Table{Name: t.Name}
	out.Columns = append([]database.Column(nil), t.Columns...)
	for _, fk := range t.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, database.ForeignKey{
			Name:              fk.Name,
			Columns:           append([]string(nil), fk.Columns...),
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: append([]string(nil), fk.ReferencedColumns...),
		})
	}
	if t.RowCount != nil {
		n := *t.RowCount
		out.RowCount = &n
	}
	return out
}

func (s *Snapshot) primaryKey(table string) string {
	t, ok := s.lookup(table)
	if !ok {
		return ""
	}
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			return c.Name
		}
	}
	return ""
}

func (s *Snapshot) canonicalName(table string) string {
	if t, ok := s.lookup(table); ok {
		return t.Name
	}
	return table
}

func (s *Snapshot) lookup(name string) (*database.Table, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &s.tables[i], true
}

// Len returns the number of tables.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}

// Hash returns the sha256 content hash of the snapshot.
func (s *Snapshot) Hash() string {
	if s == nil {
		return ""
	}
	return s.hash
}

// BuiltAt returns when the snapshot was taken.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Tables returns the table names in case-insensitive alphabetical order.
func (s *Snapshot) Tables() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// Table returns a copy of the named table.
func (s *Snapshot) Table(name string) (database.Table, bool) {
	t, ok := s.lookup(name)
	if !ok {
		return database.Table{}, false
	}
	return copyTable(*t), true
}

// HasTable reports whether the table exists.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// Column returns the named column of a table.
func (s *Snapshot) Column(table, column string) (database.Column, bool) {
	t, ok := s.lookup(table)
	if !ok {
		return database.Column{}, false
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return c, true
		}
	}
	return database.Column{}, false
}

// HasColumn reports whether table has the column.
func (s *Snapshot) HasColumn(table, column string) bool {
	_, ok := s.Column(table, column)
	return ok
}

// ColumnNames returns a table's column names in declaration order.
func (s *Snapshot) ColumnNames(table string) []string {
	t, ok := s.lookup(table)
	if !ok {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TablesWithColumn returns the tables that declare the column.
func (s *Snapshot) TablesWithColumn(column string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, t := range s.tables {
		for _, c := range t.Columns {
			if strings.EqualFold(c.Name, column) {
				out = append(out, t.Name)
				break
			}
		}
	}
	return out
}

// RowCount returns the row count recorded for a table, if any.
func (s *Snapshot) RowCount(table string) (int64, bool) {
	t, ok := s.lookup(table)
	if !ok || t.RowCount == nil {
		return 0, false
	}
	return *t.RowCount, true
}

// Edges returns every foreign-key edge in the snapshot.
func (s *Snapshot) Edges() []Edge {
	if s == nil {
		return nil
	}
	return append([]Edge(nil), s.edges...)
}

// References returns the edges leaving table (outgoing) and the edges pointing at it (incoming).
func (s *Snapshot) References(table string) (outgoing, incoming []Edge) {
	if s == nil {
		return nil, nil
	}
	for _, e := range s.edges {
		if strings.EqualFold(e.Table, table) {
			outgoing = append(outgoing, e)
		}
		if strings.EqualFold(e.RefTable, table) {
			incoming = append(incoming, e)
		}
	}
	return outgoing, incoming
}

// ClosestTables suggests existing table names for a misspelled one.
func (s *Snapshot) ClosestTables(name string) []string {
	return strutil.ClosestMatches(name, s.Tables(), strutil.SuggestionDistance(name), 3)
}

// ClosestColumns suggests existing column names for a misspelled one. With no
// tables given, every column in the snapshot is a candidate.
func (s *Snapshot) ClosestColumns(name string, tables ...string) []string {
	if s == nil {
		return nil
	}
	if len(tables) == 0 {
		tables = s.Tables()
	}
	var candidates []string
	for _, t := range tables {
		candidates = append(candidates, s.ColumnNames(t)...)
	}
	return strutil.ClosestMatches(name, candidates, strutil.SuggestionDistance(name), 3)
}
