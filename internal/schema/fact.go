package schema

import "strings"

// Fact is a set of sample values observed in one column, gathered to ground
// literal values in generated queries.
type Fact struct {
	Table  string   `json:"table"`
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// TextColumns returns the non-key columns of a table whose declared type is
// textual.
func (s *Snapshot) TextColumns(table string) []string {
	t, ok := s.lookup(table)
	if !ok {
		return nil
	}

	fkColumns := map[string]bool{}
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			fkColumns[strings.ToLower(c)] = true
		}
	}

	var out []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey || fkColumns[strings.ToLower(c.Name)] || !isTextType(c.Type) {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

func isTextType(declared string) bool {
	t := strings.ToLower(declared)
	for _, prefix := range []string{"varchar", "nvarchar", "char", "nchar", "character", "text", "clob", "string", "citext", "name"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
