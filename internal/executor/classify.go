package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Category classifies an execution failure.
type Category string

const (
	SyntaxError         Category = "SyntaxError"
	UnknownColumn       Category = "UnknownColumn"
	UnknownTable        Category = "UnknownTable"
	TypeMismatch        Category = "TypeMismatch"
	ConstraintViolation Category = "ConstraintViolation"
	Timeout             Category = "Timeout"
	ReadOnlyViolation   Category = "ReadOnlyViolation"
	ExecutionError      Category = "ExecutionError"
)

// Classify maps a driver error to a Category. Postgres SQLSTATE codes and
// SQLite result codes are consulted first, then the message text.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if c, ok := classifySQLState(pqErr.Code); ok {
			return c
		}
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_READONLY:
			return ReadOnlyViolation
		case sqlite3.SQLITE_INTERRUPT:
			return Timeout
		case sqlite3.SQLITE_CONSTRAINT:
			return ConstraintViolation
		case sqlite3.SQLITE_MISMATCH:
			return TypeMismatch
		}
	}

	return classifyMessage(err.Error())
}

func classifySQLState(code pq.ErrorCode) (Category, bool) {
	switch code {
	case "42601":
		return SyntaxError, true
	case "42703":
		return UnknownColumn, true
	case "42P01":
		return UnknownTable, true
	case "42804", "42883", "22P02":
		return TypeMismatch, true
	case "57014":
		return Timeout, true
	case "25006":
		return ReadOnlyViolation, true
	}

	switch code.Class() {
	case "23":
		return ConstraintViolation, true
	case "22":
		return TypeMismatch, true
	}
	return "", false
}

var messageRules = []struct {
	category Category
	needles  []string
}{
	{UnknownColumn, []string{"no such column", "unknown column", "column does not exist"}},
	{UnknownTable, []string{"no such table", "unknown table", "relation does not exist"}},
	{SyntaxError, []string{"syntax error", "incomplete input", "unrecognized token"}},
	{ReadOnlyViolation, []string{"readonly", "read-only", "read only"}},
	{Timeout, []string{"interrupted", "canceling statement", "timeout"}},
	{TypeMismatch, []string{"datatype mismatch", "invalid input syntax", "operator does not exist"}},
	{ConstraintViolation, []string{"constraint"}},
}

func classifyMessage(msg string) Category {
	lower := strings.ToLower(msg)

	// Postgres names the object between the noun and "does not exist"
	if strings.Contains(lower, "does not exist") {
		switch {
		case strings.Contains(lower, "column "):
			return UnknownColumn
		case strings.Contains(lower, "relation ") || strings.Contains(lower, "table "):
			return UnknownTable
		}
	}

	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.category
			}
		}
	}
	return ExecutionError
}
