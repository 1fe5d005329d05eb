// Package postgres reads PostgreSQL table structure from pg_catalog.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/askdb/askdb/database"
)

// Introspector describes the relations of the current schema (the first
// entry of search_path). Views and materialized views are listed alongside
// tables since questions can be answered from either.
type Introspector struct{}

// NewIntrospector creates a new PostgreSQL introspector
func NewIntrospector() *Introspector {
	return &Introspector{}
}

var _ database.Introspector = (*Introspector)(nil)

const tablesQuery = `
SELECT c.relname
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = current_schema()
  AND c.relkind IN ('r', 'p', 'v', 'm')
ORDER BY c.relname`

// format_type keeps the declared modifiers (varchar(40), numeric(10,2)).
const columnsQuery = `
SELECT a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod),
       NOT a.attnotnull,
       pg_catalog.pg_get_expr(d.adbin, d.adrelid),
       COALESCE(a.attnum = ANY (i.indkey), false)
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
LEFT JOIN pg_catalog.pg_index i ON i.indrelid = c.oid AND i.indisprimary
WHERE n.nspname = current_schema()
  AND c.relname = $1
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY a.attnum`

// unnest pairs conkey with confkey so multi-column keys keep their order.
const foreignKeysQuery = `
SELECT con.conname,
       ref.relname,
       array_agg(a.attname::text ORDER BY k.ord),
       array_agg(ra.attname::text ORDER BY k.ord)
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_class ref ON ref.oid = con.confrelid
CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refattnum, ord)
JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
JOIN pg_catalog.pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refattnum
WHERE con.contype = 'f'
  AND n.nspname = current_schema()
  AND c.relname = $1
GROUP BY con.conname, ref.relname
ORDER BY con.conname`

// GetTables returns the tables and views of the current schema.
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

// GetColumns returns the columns of a relation in declaration order.
func (i *Introspector) GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]database.Column, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &def, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", tableName, err)
		}
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// GetForeignKeys returns the foreign keys declared on a table.
func (i *Introspector) GetForeignKeys(ctx context.Context, db *sql.DB, tableName string) ([]database.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, foreignKeysQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var fks []database.ForeignKey
	for rows.Next() {
		var fk database.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.ReferencedTable, pq.Array(&fk.Columns), pq.Array(&fk.ReferencedColumns)); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", tableName, err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// CountRows returns the exact number of rows in a relation.
func (i *Introspector) CountRows(ctx context.Context, db *sql.DB, tableName string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+i.QuoteIdentifier(tableName)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// QuoteIdentifier quotes a name for PostgreSQL.
func (i *Introspector) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}
