package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/internal/sqliteutil"
)

// ErrReadOnlyUnsupported is returned by Open when the driver cannot provide a
// read-only transaction.
var ErrReadOnlyUnsupported = errors.New("driver does not support read-only transactions")

// DefaultMaxRows bounds the rows kept from one result set.
const DefaultMaxRows = 1000

// ResultSet holds the rows of one query in result-set column order.
type ResultSet struct {
	Columns   []string
	Rows      [][]any
	Truncated bool // more rows were available than MaxRows
}

// Handle runs read-only queries.
type Handle interface {
	RunQuery(ctx context.Context, query string) (*ResultSet, error)
}

// Options configures Open.
type Options struct {
	MaxRows int
	Logger  *zap.Logger
}

// SQLHandle is a read-only database/sql connection owned by one session.
type SQLHandle struct {
	db           *sql.DB
	driverType   string
	introspector database.Introspector
	maxRows      int
	logger       *zap.Logger
}

var _ Handle = (*SQLHandle)(nil)

// Open connects to the database named by connStr and verifies that it can
// run read-only transactions. SQLite files are opened with mode=ro and
// PRAGMA query_only; a missing SQLite file is an error rather than a new
// empty database.
func Open(ctx context.Context, connStr string, opts Options) (*SQLHandle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	driverType := database.DetectDriver(connStr)
	if driverType == "" {
		return nil, fmt.Errorf("%w: cannot detect driver for %q", database.ErrUnknownDriver, redact(connStr))
	}

	introspector, err := NewIntrospector(driverType)
	if err != nil {
		return nil, err
	}

	dsn := connStr
	if driverType == "sqlite" {
		if err := sqliteutil.CheckFile(connStr); err != nil {
			return nil, err
		}
		dsn = sqliteutil.ReadOnlyDSN(connStr)
	}

	db, err := sql.Open(database.GetSQLDriverName(driverType), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	// One connection per session; handles are never shared
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h := &SQLHandle{
		db:           db,
		driverType:   driverType,
		introspector: introspector,
		maxRows:      maxRows,
		logger:       logger,
	}

	if err := h.checkReadOnly(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("opened read-only handle", zap.String("driver", driverType))
	return h, nil
}

// checkReadOnly begins and rolls back a read-only transaction. On SQLite it
// also confirms that query_only is in effect.
func (h *SQLHandle) checkReadOnly(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadOnlyUnsupported, h.driverType, err)
	}
	defer func() { _ = tx.Rollback() }()

	if h.driverType != "sqlite" {
		return nil
	}

	var queryOnly int
	if err := tx.QueryRowContext(ctx, "PRAGMA query_only").Scan(&queryOnly); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadOnlyUnsupported, h.driverType, err)
	}
	if queryOnly != 1 {
		return fmt.Errorf("%w: %s: query_only is off", ErrReadOnlyUnsupported, h.driverType)
	}
	return nil
}

// Driver returns the detected driver type: "sqlite", "postgres" or "libsql".
func (h *SQLHandle) Driver() string {
	return h.driverType
}

// Source exposes the handle as a schema source.
func (h *SQLHandle) Source(withRowCounts bool) *database.Source {
	return &database.Source{DB: h.db, Introspector: h.introspector, WithRowCounts: withRowCounts}
}

// RunQuery executes query inside a read-only transaction that is always
// rolled back.
func (h *SQLHandle) RunQuery(ctx context.Context, query string) (*ResultSet, error) {
	tx, err := h.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows, h.maxRows)
}

// DistinctValues returns up to limit distinct non-null values of a column, as text.
func (h *SQLHandle) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	col := h.introspector.QuoteIdentifier(column)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		col, h.introspector.QuoteIdentifier(table), col, limit)

	rs, err := h.RunQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct values of %s.%s: %w", table, column, err)
	}

	values := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		values = append(values, fmt.Sprint(row[0]))
	}
	return values, nil
}

// Close releases the connection.
func (h *SQLHandle) Close() error {
	return h.db.Close()
}

func scanRows(rows *sql.Rows, maxRows int) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	rs := &ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if len(rs.Rows) == maxRows {
			rs.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}

	return rs, rows.Err()
}

// redact hides the password of a URL-style connection string.
func redact(connStr string) string {
	if u, err := url.Parse(connStr); err == nil && u.User != nil {
		return u.Redacted()
	}
	return connStr
}
