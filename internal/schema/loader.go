package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDDL reads CREATE TABLE statements from a .sql file, or from every .sql
// file directly inside a directory, and returns them as a schema source.
func LoadDDL(path string) (*StaticSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema path: %w", err)
	}

	if info.IsDir() {
		return loadDDLFromDir(path)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".sql") {
		return nil, fmt.Errorf("expected a .sql file, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SQL file: %w", err)
	}

	return loadDDLFromBytes(data)
}

func loadDDLFromDir(dir string) (*StaticSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".sql") {
			sqlFiles = append(sqlFiles, filepath.Join(dir, entry.Name()))
		}
	}

	if len(sqlFiles) == 0 {
		return nil, fmt.Errorf("no .sql files found in directory %s", dir)
	}

	sort.Strings(sqlFiles)

	var builder strings.Builder
	for _, file := range sqlFiles {
		data, readErr := os.ReadFile(file)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read SQL file %s: %w", file, readErr)
		}

		fmt.Fprintf(&builder, "-- File: %s\n", file)
		builder.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return loadDDLFromBytes([]byte(builder.String()))
}

func loadDDLFromBytes(data []byte) (*StaticSource, error) {
	tables, err := ParseDDL(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL DDL: %w", err)
	}
	return &StaticSource{Tables: tables}, nil
}
