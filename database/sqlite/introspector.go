// Package sqlite reads SQLite and libSQL table structure through the
// table-valued pragma functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/askdb/askdb/database"
)

// Introspector implements database.Introspector for SQLite and libSQL.
// Views are listed with the tables; internal sqlite_ and libsql_ tables are not.
type Introspector struct{}

// NewIntrospector creates a new SQLite introspector
func NewIntrospector() *Introspector {
	return &Introspector{}
}

var _ database.Introspector = (*Introspector)(nil)

const tablesQuery = `
SELECT name
FROM sqlite_schema
WHERE type IN ('table', 'view')
  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
  AND name NOT LIKE 'libsql\_%' ESCAPE '\'
ORDER BY name`

// GetTables returns the tables and views of the main database.
func (i *Introspector) GetTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetColumns returns the columns of a table or view in declaration order.
// A primary key column is never reported as nullable.
func (i *Introspector) GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]database.Column, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		var notNull bool
		var def sql.NullString
		var pk int
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", tableName, err)
		}
		col.IsPrimaryKey = pk > 0
		col.Nullable = !notNull && !col.IsPrimaryKey
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", tableName)
	}
	return columns, nil
}

// GetForeignKeys returns the foreign keys declared on a table. A reference
// written without columns (REFERENCES Artist) resolves to the parent's
// primary key.
func (i *Introspector) GetForeignKeys(ctx context.Context, db *sql.DB, tableName string) ([]database.ForeignKey, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys of %s: %w", tableName, err)
	}

	var fks []database.ForeignKey
	lastID := -1
	for rows.Next() {
		var id int
		var parent, from string
		var to sql.NullString
		if err := rows.Scan(&id, &parent, &from, &to); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", tableName, err)
		}
		if id != lastID {
			fks = append(fks, database.ForeignKey{
				Name:            fmt.Sprintf("fk_%s_%d", tableName, id),
				ReferencedTable: parent,
			})
			lastID = id
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	for n := range fks {
		if err := i.resolveImplicitReference(ctx, db, &fks[n]); err != nil {
			return nil, err
		}
	}
	return fks, nil
}

func (i *Introspector) resolveImplicitReference(ctx context.Context, db *sql.DB, fk *database.ForeignKey) error {
	if !slicesAllEmpty(fk.ReferencedColumns) {
		return nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, fk.ReferencedTable)
	if err != nil {
		return fmt.Errorf("failed to resolve primary key of %s: %w", fk.ReferencedTable, err)
	}
	defer func() { _ = rows.Close() }()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		pk = append(pk, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pk) == len(fk.Columns) {
		fk.ReferencedColumns = pk
	}
	return nil
}

func slicesAllEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

// CountRows returns the number of rows in a table or view.
func (i *Introspector) CountRows(ctx context.Context, db *sql.DB, tableName string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+i.QuoteIdentifier(tableName)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// QuoteIdentifier wraps a name in double quotes, escaping embedded quotes
func (i *Introspector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
