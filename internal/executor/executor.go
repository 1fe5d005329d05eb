// Package executor runs validated SQL on a read-only handle with a hard
// timeout and classifies failures for the correction loop.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/askdb/askdb/database"
	"github.com/askdb/askdb/database/postgres"
	"github.com/askdb/askdb/database/sqlite"
	"github.com/askdb/askdb/internal/sqlvalidation"
)

// DefaultTimeout is the per-query deadline.
const DefaultTimeout = 10 * time.Second

// NewIntrospector returns the schema introspector for a driver type.
func NewIntrospector(driverType string) (database.Introspector, error) {
	switch driverType {
	case "postgres", "postgresql":
		return postgres.NewIntrospector(), nil
	case "sqlite", "sqlite3", "libsql":
		return sqlite.NewIntrospector(), nil
	default:
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownDriver, driverType)
	}
}

// Outcome is the result of one execution: rows on success, a classified
// failure otherwise.
type Outcome struct {
	OK        bool          `json:"ok"`
	Columns   []string      `json:"columns,omitempty"`
	Rows      [][]any       `json:"rows,omitempty"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated,omitempty"`
	Category  Category      `json:"category,omitempty"`
	Message   string        `json:"message,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Failed reports whether the execution failed.
func (o Outcome) Failed() bool {
	return !o.OK
}

// Engine executes statements that passed validation.
type Engine struct {
	Handle Handle
	Logger *zap.Logger
}

// NewEngine returns an Engine over h.
func NewEngine(h Handle, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Handle: h, Logger: logger}
}

// Execute runs the normalized SQL of an accepted verdict. A verdict that was
// not accepted is never sent to the database. The timeout cancels the query;
// zero means DefaultTimeout.
func (e *Engine) Execute(ctx context.Context, v sqlvalidation.Verdict, timeout time.Duration) Outcome {
	if !v.Accepted || v.SQL == "" {
		return Outcome{Category: ExecutionError, Message: "statement was not accepted by validation"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rs, err := e.Handle.RunQuery(queryCtx, v.SQL)
	elapsed := time.Since(start)

	if err != nil {
		category := Classify(err)
		// Drivers report an expired deadline in many ways
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			category = Timeout
		}
		message := err.Error()
		if category == Timeout {
			message = fmt.Sprintf("query exceeded the %s timeout: %s", timeout, message)
		}
		e.Logger.Debug("query failed",
			zap.String("category", string(category)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Outcome{Category: category, Message: message, Elapsed: elapsed}
	}

	e.Logger.Debug("query succeeded",
		zap.Int("rows", len(rs.Rows)),
		zap.Duration("elapsed", elapsed))

	return Outcome{
		OK:        true,
		Columns:   rs.Columns,
		Rows:      rs.Rows,
		RowCount:  len(rs.Rows),
		Truncated: rs.Truncated,
		Elapsed:   elapsed,
	}
}
