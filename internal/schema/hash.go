package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/askdb/askdb/database"
)

// computeHash generates a deterministic hash of a table set. Any change to a
// table, column, type or foreign key produces a different hash.
func computeHash(tables []database.Table) string {
	canonical := canonicalizeTables(tables)

	// Maps of strings and slices always marshal
	jsonBytes, _ := json.Marshal(canonical)
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:])
}

// canonicalizeTables creates a sorted, deterministic representation of tables
func canonicalizeTables(tables []database.Table) map[string]interface{} {
	sorted := make([]database.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	out := make([]interface{}, 0, len(sorted))
	for _, table := range sorted {
		tableMap := map[string]interface{}{
			"name":    table.Name,
			"columns": canonicalizeColumns(table.Columns),
		}
		if len(table.ForeignKeys) > 0 {
			tableMap["foreign_keys"] = canonicalizeForeignKeys(table.ForeignKeys)
		}
		out = append(out, tableMap)
	}

	return map[string]interface{}{"tables": out}
}

// Column order is part of the schema, so columns keep declaration order.
func canonicalizeColumns(columns []database.Column) []interface{} {
	result := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		colMap := map[string]interface{}{
			"name":           col.Name,
			"type":           strings.ToLower(col.Type),
			"nullable":       col.Nullable,
			"is_primary_key": col.IsPrimaryKey,
		}
		if col.Default != nil {
			colMap["default"] = *col.Default
		}
		result = append(result, colMap)
	}
	return result
}

func canonicalizeForeignKeys(fks []database.ForeignKey) []interface{} {
	sortedFKs := make([]database.ForeignKey, len(fks))
	copy(sortedFKs, fks)
	sort.Slice(sortedFKs, func(i, j int) bool {
		if len(sortedFKs[i].Columns) > 0 && len(sortedFKs[j].Columns) > 0 &&
			sortedFKs[i].Columns[0] != sortedFKs[j].Columns[0] {
			return sortedFKs[i].Columns[0] < sortedFKs[j].Columns[0]
		}
		return sortedFKs[i].ReferencedTable < sortedFKs[j].ReferencedTable
	})

	result := make([]interface{}, 0, len(sortedFKs))
	for _, fk := range sortedFKs {
		result = append(result, map[string]interface{}{
			"columns":            fk.Columns,
			"referenced_table":   fk.ReferencedTable,
			"referenced_columns": fk.ReferencedColumns,
		})
	}
	return result
}
