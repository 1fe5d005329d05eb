package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/sqliteutil"
)

// ErrUnknownDriver is returned when a connection string maps to no supported driver.
var ErrUnknownDriver = errors.New("unsupported database driver")

// Table represents a database table
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	RowCount    *int64       `json:"row_count,omitempty"`
}

// Column represents a table column
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

// Introspector defines the interface for database schema introspection
type Introspector interface {
	// GetTables returns all table names in the database
	GetTables(ctx context.Context, db *sql.DB) ([]string, error)

	// GetColumns returns all columns for a given table, in declaration order
	GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]Column, error)

	// GetForeignKeys returns all foreign keys for a given table
	GetForeignKeys(ctx context.Context, db *sql.DB, tableName string) ([]ForeignKey, error)

	// CountRows returns the number of rows in a table
	CountRows(ctx context.Context, db *sql.DB, tableName string) (int64, error)

	// QuoteIdentifier quotes a table or column name for this dialect
	QuoteIdentifier(name string) string
}

// Source binds an Introspector to an open connection. It is the schema source
// consumed when building a snapshot.
type Source struct {
	DB           *sql.DB
	Introspector Introspector
	// WithRowCounts enables a COUNT(*) per table while describing the schema.
	WithRowCounts bool
}

// ListTables returns all table names.
func (s *Source) ListTables(ctx context.Context) ([]string, error) {
	return s.Introspector.GetTables(ctx, s.DB)
}

// DescribeTable returns the ordered column descriptors for a table.
func (s *Source) DescribeTable(ctx context.Context, name string) ([]Column, error) {
	return s.Introspector.GetColumns(ctx, s.DB, name)
}

// ForeignKeys returns the foreign keys declared on a table.
func (s *Source) ForeignKeys(ctx context.Context, name string) ([]ForeignKey, error) {
	return s.Introspector.GetForeignKeys(ctx, s.DB, name)
}

// CountRows returns the row count of a table, or false when counting is disabled.
func (s *Source) CountRows(ctx context.Context, name string) (int64, bool, error) {
	if !s.WithRowCounts {
		return 0, false, nil
	}
	n, err := s.Introspector.CountRows(ctx, s.DB, name)
	if err != nil {
		return 0, false, fmt.Errorf("failed to count rows in %s: %w", name, err)
	}
	return n, true, nil
}

// DetectDriver returns the driver type for a connection string:
// "postgres", "libsql" or "sqlite".
func DetectDriver(connStr string) string {
	lower := strings.ToLower(strings.TrimSpace(connStr))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "libsql://"):
		return "libsql"
	case sqliteutil.IsConnString(lower):
		return "sqlite"
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname="):
		return "postgres"
	}
	return ""
}

// GetSQLDriverName maps a driver type to the name registered with database/sql.
func GetSQLDriverName(driverType string) string {
	switch driverType {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "libsql":
		return "libsql"
	default:
		return driverType
	}
}
