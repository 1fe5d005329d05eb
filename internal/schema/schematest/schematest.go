// Package schematest provides a small music-store schema for tests.
package schematest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/internal/schema"
	_ "modernc.org/sqlite"
)

// DDL creates the music-store tables. It runs on both SQLite and Postgres.
const DDL = `
CREATE TABLE Artist (
	ArtistId INTEGER PRIMARY KEY,
	Name VARCHAR(120)
);
CREATE TABLE Album (
	AlbumId INTEGER PRIMARY KEY,
	Title VARCHAR(160) NOT NULL,
	ArtistId INTEGER NOT NULL REFERENCES Artist(ArtistId)
);
CREATE TABLE Genre (
	GenreId INTEGER PRIMARY KEY,
	Name VARCHAR(120)
);
CREATE TABLE Track (
	TrackId INTEGER PRIMARY KEY,
	Name VARCHAR(200) NOT NULL,
	AlbumId INTEGER REFERENCES Album(AlbumId),
	GenreId INTEGER REFERENCES Genre(GenreId),
	Composer VARCHAR(220),
	Milliseconds INTEGER NOT NULL,
	UnitPrice NUMERIC(10,2) NOT NULL
);
CREATE TABLE Customer (
	CustomerId INTEGER PRIMARY KEY,
	FirstName VARCHAR(40) NOT NULL,
	LastName VARCHAR(20) NOT NULL,
	City VARCHAR(40),
	Country VARCHAR(40),
	Email VARCHAR(60) NOT NULL
);
CREATE TABLE Invoice (
	InvoiceId INTEGER PRIMARY KEY,
	CustomerId INTEGER NOT NULL REFERENCES Customer(CustomerId),
	InvoiceDate TIMESTAMP NOT NULL,
	BillingCountry VARCHAR(40),
	Total NUMERIC(10,2) NOT NULL
);
CREATE TABLE InvoiceLine (
	InvoiceLineId INTEGER PRIMARY KEY,
	InvoiceId INTEGER NOT NULL REFERENCES Invoice(InvoiceId),
	TrackId INTEGER NOT NULL REFERENCES Track(TrackId),
	UnitPrice NUMERIC(10,2) NOT NULL,
	Quantity INTEGER NOT NULL
);
`

// Seed inserts a handful of rows into the DDL tables.
const Seed = `
INSERT INTO Artist (ArtistId, Name) VALUES (1, 'AC/DC'), (2, 'Accept'), (3, 'Aerosmith');
INSERT INTO Album (AlbumId, Title, ArtistId) VALUES
	(1, 'For Those About To Rock We Salute You', 1),
	(2, 'Balls to the Wall', 2),
	(3, 'Restless and Wild', 2),
	(4, 'Let There Be Rock', 1);
INSERT INTO Genre (GenreId, Name) VALUES (1, 'Rock'), (2, 'Jazz'), (3, 'Metal');
INSERT INTO Track (TrackId, Name, AlbumId, GenreId, Composer, Milliseconds, UnitPrice) VALUES
	(1, 'For Those About To Rock', 1, 1, 'Angus Young', 343719, 0.99),
	(2, 'Balls to the Wall', 2, 3, NULL, 342562, 0.99),
	(3, 'Fast As a Shark', 3, 3, 'F. Baltes', 230619, 0.99),
	(4, 'Go Down', 4, 1, 'AC/DC', 331180, 0.99);
INSERT INTO Customer (CustomerId, FirstName, LastName, City, Country, Email) VALUES
	(1, 'Luis', 'Goncalves', 'Sao Jose dos Campos', 'Brazil', 'luisg@example.com'),
	(2, 'Leonie', 'Kohler', 'Stuttgart', 'Germany', 'leonekohler@example.com'),
	(3, 'Francois', 'Tremblay', 'Montreal', 'Canada', 'ftremblay@example.com'),
	(4, 'Bjorn', 'Hansen', 'Oslo', 'Norway', 'bjorn.hansen@example.com');
INSERT INTO Invoice (InvoiceId, CustomerId, InvoiceDate, BillingCountry, Total) VALUES
	(1, 2, '2024-01-01 00:00:00', 'Germany', 1.98),
	(2, 4, '2024-01-02 00:00:00', 'Norway', 3.96),
	(3, 1, '2024-02-01 00:00:00', 'Brazil', 0.99);
INSERT INTO InvoiceLine (InvoiceLineId, InvoiceId, TrackId, UnitPrice, Quantity) VALUES
	(1, 1, 1, 0.99, 1),
	(2, 1, 2, 0.99, 1),
	(3, 2, 3, 0.99, 4),
	(4, 3, 4, 0.99, 1);
`

// Tables returns the music-store tables with their declared case preserved.
func Tables() []database.Table {
	pk := func(name string) database.Column {
		return database.Column{Name: name, Type: "INTEGER", IsPrimaryKey: true}
	}
	col := func(name, typ string, nullable bool) database.Column {
		return database.Column{Name: name, Type: typ, Nullable: nullable}
	}
	fk := func(column, table string) database.ForeignKey {
		return database.ForeignKey{Columns: []string{column}, ReferencedTable: table, ReferencedColumns: []string{column}}
	}
	count := func(n int64) *int64 { return &n }

	return []database.Table{
		{Name: "Artist", Columns: []database.Column{pk("ArtistId"), col("Name", "VARCHAR(120)", true)}, RowCount: count(3)},
		{
			Name:        "Album",
			Columns:     []database.Column{pk("AlbumId"), col("Title", "VARCHAR(160)", false), col("ArtistId", "INTEGER", false)},
			ForeignKeys: []database.ForeignKey{fk("ArtistId", "Artist")},
			RowCount:    count(4),
		},
		{Name: "Genre", Columns: []database.Column{pk("GenreId"), col("Name", "VARCHAR(120)", true)}, RowCount: count(3)},
		{
			Name: "Track",
			Columns: []database.Column{
				pk("TrackId"), col("Name", "VARCHAR(200)", false), col("AlbumId", "INTEGER", true),
				col("GenreId", "INTEGER", true), col("Composer", "VARCHAR(220)", true),
				col("Milliseconds", "INTEGER", false), col("UnitPrice", "NUMERIC(10,2)", false),
			},
			ForeignKeys: []database.ForeignKey{fk("AlbumId", "Album"), fk("GenreId", "Genre")},
			RowCount:    count(4),
		},
		{
			Name: "Customer",
			Columns: []database.Column{
				pk("CustomerId"), col("FirstName", "VARCHAR(40)", false), col("LastName", "VARCHAR(20)", false),
				col("City", "VARCHAR(40)", true), col("Country", "VARCHAR(40)", true), col("Email", "VARCHAR(60)", false),
			},
			RowCount: count(4),
		},
		{
			Name: "Invoice",
			Columns: []database.Column{
				pk("InvoiceId"), col("CustomerId", "INTEGER", false), col("InvoiceDate", "TIMESTAMP", false),
				col("BillingCountry", "VARCHAR(40)", true), col("Total", "NUMERIC(10,2)", false),
			},
			ForeignKeys: []database.ForeignKey{fk("CustomerId", "Customer")},
			RowCount:    count(3),
		},
		{
			Name: "InvoiceLine",
			Columns: []database.Column{
				pk("InvoiceLineId"), col("InvoiceId", "INTEGER", false), col("TrackId", "INTEGER", false),
				col("UnitPrice", "NUMERIC(10,2)", false), col("Quantity", "INTEGER", false),
			},
			ForeignKeys: []database.ForeignKey{fk("InvoiceId", "Invoice"), fk("TrackId", "Track")},
			RowCount:    count(4),
		},
	}
}

// Snapshot returns a snapshot of Tables.
func Snapshot() *schema.Snapshot {
	return schema.New(Tables())
}

// OpenSQLite creates and seeds a music-store database in t.TempDir and returns its path.
func OpenSQLite(t testing.TB) string {
	t.Helper()

	path := t.TempDir() + "/music.db"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	for _, script := range []string{DDL, Seed} {
		if _, err := db.ExecContext(ctx, script); err != nil {
			t.Fatalf("failed to seed database: %v", err)
		}
	}
	return path
}
