package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/askdb/askdb/database"
)

// Source is anything that can describe a database's structure.
// *database.Source satisfies it for live connections.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) ([]database.Column, error)
	ForeignKeys(ctx context.Context, name string) ([]database.ForeignKey, error)
	// CountRows reports false when the source does not know row counts.
	CountRows(ctx context.Context, name string) (int64, bool, error)
}

var _ Source = (*database.Source)(nil)

// Build reads every table from src and returns a snapshot of them.
func Build(ctx context.Context, src Source) (*Snapshot, error) {
	names, err := src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]database.Table, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		columns, err := src.DescribeTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", name, err)
		}

		foreignKeys, err := src.ForeignKeys(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", name, err)
		}

		table := database.Table{Name: name, Columns: columns, ForeignKeys: foreignKeys}

		n, ok, err := src.CountRows(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			table.RowCount = &n
		}

		tables = append(tables, table)
	}

	return New(tables), nil
}

// StaticSource serves a fixed set of tables, such as ones parsed from DDL.
type StaticSource struct {
	Tables []database.Table
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) find(name string) (database.Table, error) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return database.Table{}, fmt.Errorf("table %q not found", name)
}

// ListTables returns the table names in declaration order.
func (s *StaticSource) ListTables(ctx context.Context) ([]string, error) {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names, nil
}

// DescribeTable returns the declared columns.
func (s *StaticSource) DescribeTable(ctx context.Context, name string) ([]database.Column, error) {
	t, err := s.find(name)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// ForeignKeys returns the declared foreign keys.
func (s *StaticSource) ForeignKeys(ctx context.Context, name string) ([]database.ForeignKey, error) {
	t, err := s.find(name)
	if err != nil {
		return nil, err
	}
	return t.ForeignKeys, nil
}

// CountRows returns the recorded row count, if any.
func (s *StaticSource) CountRows(ctx context.Context, name string) (int64, bool, error) {
	t, err := s.find(name)
	if err != nil {
		return 0, false, err
	}
	if t.RowCount == nil {
		return 0, false, nil
	}
	return *t.RowCount, true, nil
}
