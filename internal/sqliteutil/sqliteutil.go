// Package sqliteutil recognizes SQLite connection strings and builds read-only DSNs for them.
package sqliteutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

var (
	// ErrNotFound reports a database file that does not exist.
	ErrNotFound = errors.New("sqlite database not found")
	// ErrNotDatabase reports a path that exists but holds no SQLite database.
	ErrNotDatabase = errors.New("not a sqlite database")
)

// header is the first 16 bytes of every SQLite 3 database file.
var header = []byte("SQLite format 3\x00")

// IsConnString reports whether s names a SQLite database: a sqlite:// or
// file: URL, :memory:, or a path ending in .db, .sqlite or .sqlite3.
func IsConnString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == ":memory:":
		return true
	case strings.HasPrefix(s, "sqlite://"), strings.HasPrefix(s, "file:"):
		return true
	case strings.Contains(s, "://"):
		return false
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// FilePath strips the URL scheme and query from a SQLite connection string.
func FilePath(connStr string) string {
	path := connStr
	for _, scheme := range []string{"sqlite://", "file:"} {
		if strings.HasPrefix(path, scheme) {
			path = strings.TrimPrefix(path, scheme)
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			break
		}
	}
	return path
}

// ReadOnlyDSN returns a modernc.org/sqlite DSN that opens the file read-only
// and turns on query_only for every connection. Any mode the caller passed is
// dropped.
func ReadOnlyDSN(connStr string) string {
	params := url.Values{}
	params.Set("mode", "ro")
	params.Add("_pragma", "query_only(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	if connStr == ":memory:" {
		return "file::memory:?" + params.Encode()
	}
	return "file:" + FilePath(connStr) + "?" + params.Encode()
}

// CheckFile verifies that connStr points at an existing SQLite database.
// A zero-length file is accepted as an empty database.
func CheckFile(connStr string) error {
	if connStr == ":memory:" {
		return nil
	}
	path := FilePath(connStr)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotDatabase, path)
	}
	if info.Size() == 0 {
		return nil
	}

	buf := make([]byte, len(header))
	if _, err := io.ReadFull(f, buf); err != nil || !bytes.Equal(buf, header) {
		return fmt.Errorf("%w: %s", ErrNotDatabase, path)
	}
	return nil
}
