package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/askdb/askdb/database"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed snapshot.schema.json
var snapshotJSONSchema string

var snapshotSchemaLoader = gojsonschema.NewStringLoader(snapshotJSONSchema)

type snapshotFile struct {
	Hash   string           `json:"hash,omitempty"`
	Tables []database.Table `json:"tables"`
}

// MarshalJSON encodes the snapshot in the snapshot file format.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	tables := s.tables
	if tables == nil {
		tables = []database.Table{}
	}
	return json.Marshal(snapshotFile{Hash: s.hash, Tables: tables})
}

// WriteJSON writes the snapshot as indented JSON.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadJSON decodes a snapshot file after validating it against the snapshot JSON Schema.
// A stored hash is ignored; the hash is always recomputed from the tables.
func ReadJSON(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	result, err := gojsonschema.Validate(snapshotSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to validate snapshot: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid snapshot: %s", strings.Join(problems, "; "))
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return New(file.Tables), nil
}

// LoadJSON reads a snapshot file from disk.
func LoadJSON(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ReadJSON(f)
}
