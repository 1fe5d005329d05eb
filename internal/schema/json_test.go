package schema_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/schema/schematest"
	"github.com/google/go-cmp/cmp"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := schematest.Snapshot()

	var buf bytes.Buffer
	if err := snap.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	loaded, err := schema.ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	if loaded.Hash() != snap.Hash() {
		t.Error("hash changed across a JSON round trip")
	}
	if diff := cmp.Diff(snap.Compact(), loaded.Compact()); diff != "" {
		t.Errorf("Compact() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing tables", `{}`, "tables"},
		{"table without name", `{"tables":[{"columns":[]}]}`, "name"},
		{"column type wrong", `{"tables":[{"name":"a","columns":[{"name":"id","type":3}]}]}`, "type"},
		{"negative row count", `{"tables":[{"name":"a","columns":[],"row_count":-1}]}`, "row_count"},
		{"not json", `tables:`, "validate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.ReadJSON(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	doc := `{
  "tables": [
    {"name": "Artist", "columns": [{"name": "ArtistId", "type": "INTEGER", "is_primary_key": true}]},
    {"name": "Album", "columns": [{"name": "AlbumId", "type": "INTEGER"}, {"name": "ArtistId", "type": "INTEGER"}],
     "foreign_keys": [{"columns": ["ArtistId"], "referenced_table": "Artist", "referenced_columns": ["ArtistId"]}]}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	snap, err := schema.LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Album", "Artist"}, snap.Tables()); diff != "" {
		t.Errorf("Tables() mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Edges()) != 1 {
		t.Errorf("expected 1 edge, got %d", len(snap.Edges()))
	}

	if _, err := schema.LoadJSON(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
