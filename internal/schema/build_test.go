package schema_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/database/sqlite"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/schema/schematest"
	"github.com/google/go-cmp/cmp"
)

func TestBuildFromSQLite(t *testing.T) {
	path := schematest.OpenSQLite(t)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	src := &database.Source{DB: db, Introspector: sqlite.NewIntrospector(), WithRowCounts: true}
	snap, err := schema.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if diff := cmp.Diff(schematest.Snapshot().Tables(), snap.Tables()); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	if n, ok := snap.RowCount("Customer"); !ok || n != 4 {
		t.Errorf("RowCount(Customer) = %d, %v; want 4, true", n, ok)
	}

	out, _ := snap.References("InvoiceLine")
	if len(out) != 2 {
		t.Errorf("expected 2 outgoing references from InvoiceLine, got %+v", out)
	}

	col, ok := snap.Column("Track", "UnitPrice")
	if !ok || col.Nullable {
		t.Errorf("Column(Track, UnitPrice) = %+v, %v", col, ok)
	}
}

func TestBuildWithoutRowCounts(t *testing.T) {
	path := schematest.OpenSQLite(t)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	snap, err := schema.Build(context.Background(), &database.Source{DB: db, Introspector: sqlite.NewIntrospector()})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := snap.RowCount("Customer"); ok {
		t.Error("expected no row count when counting is disabled")
	}
}

type failingSource struct {
	schema.StaticSource
}

func (failingSource) ListTables(context.Context) ([]string, error) {
	return nil, errors.New("connection reset")
}

func TestBuildPropagatesErrors(t *testing.T) {
	_, err := schema.Build(context.Background(), &failingSource{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestBuildFromStaticSource(t *testing.T) {
	snap, err := schema.Build(context.Background(), &schema.StaticSource{Tables: schematest.Tables()})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if snap.Hash() != schematest.Snapshot().Hash() {
		t.Error("static source snapshot differs from direct snapshot")
	}
	if n, ok := snap.RowCount("Album"); !ok || n != 4 {
		t.Errorf("RowCount(Album) = %d, %v; want 4, true", n, ok)
	}
}
