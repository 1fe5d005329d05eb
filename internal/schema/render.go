package schema

import (
	"fmt"
	"strings"
)

// Compact renders the snapshot in the terse form used in generation prompts:
//
//	Album (347 rows):
//	  AlbumId INTEGER PK, Title NVARCHAR(160) NOT NULL, ArtistId INTEGER NOT NULL
//	  ArtistId -> Artist.ArtistId
func (s *Snapshot) Compact() string {
	if s == nil {
		return ""
	}

	var b strings.Builder
	for _, t := range s.tables {
		if t.RowCount != nil {
			fmt.Fprintf(&b, "%s (%d rows):\n", t.Name, *t.RowCount)
		} else {
			fmt.Fprintf(&b, "%s:\n", t.Name)
		}

		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			parts := []string{c.Name}
			if c.Type != "" {
				parts = append(parts, c.Type)
			}
			if c.IsPrimaryKey {
				parts = append(parts, "PK")
			} else if !c.Nullable {
				parts = append(parts, "NOT NULL")
			}
			cols = append(cols, strings.Join(parts, " "))
		}
		b.WriteString("  " + strings.Join(cols, ", ") + "\n")

		out, _ := s.References(t.Name)
		for _, e := range out {
			fmt.Fprintf(&b, "  %s -> %s.%s\n", e.Column, e.RefTable, e.RefColumn)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Describe renders one table in detail: primary key, columns, foreign keys in
// both directions and the row count when known.
func (s *Snapshot) Describe(table string) (string, bool) {
	t, ok := s.lookup(table)
	if !ok {
		return "", false
	}

	var b strings.Builder
	if t.RowCount != nil {
		fmt.Fprintf(&b, "Table: %s (%d rows)\n", t.Name, *t.RowCount)
	} else {
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
	}

	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) > 0 {
		fmt.Fprintf(&b, "  Primary Key: %s\n", strings.Join(pk, ", "))
	}

	b.WriteString("  Columns:\n")
	for _, c := range t.Columns {
		suffix := ""
		if c.Nullable {
			suffix = " (nullable)"
		}
		if c.IsPrimaryKey {
			suffix += " [PK]"
		}
		fmt.Fprintf(&b, "    - %s: %s%s\n", c.Name, c.Type, suffix)
	}

	out, in := s.References(t.Name)
	if len(out) > 0 {
		b.WriteString("  Foreign Keys:\n")
		for _, e := range out {
			fmt.Fprintf(&b, "    - %s -> %s.%s\n", e.Column, e.RefTable, e.RefColumn)
		}
	}
	if len(in) > 0 {
		b.WriteString("  Referenced By:\n")
		for _, e := range in {
			fmt.Fprintf(&b, "    - %s.%s -> %s\n", e.Table, e.Column, e.RefColumn)
		}
	}

	return b.String(), true
}
