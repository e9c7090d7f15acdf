package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour spoken by a driver
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// SQLiteBusyTimeout is the lock wait, in milliseconds, added to SQLite DSNs
const SQLiteBusyTimeout = 5000

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite3":
		return SQLite, nil
	case "postgres", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return "", &Error{Code: "INVALID_CONFIG", Message: fmt.Sprintf("unsupported driver %q", driverName)}
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Quote quotes an identifier so mixed-case names survive
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
// SQLite gained it in 3.35 but LastInsertId is used there for parity with MySQL.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}

// IsMemoryDSN reports whether a SQLite DSN names an in-memory database
func IsMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// NormalizeDSN prepares a DSN for the driver. For SQLite file databases it
// creates the parent directory and adds a busy timeout and WAL journaling
// unless the DSN already sets them. Other dialects pass through unchanged.
func (d Dialect) NormalizeDSN(dsn string) (string, error) {
	if d != SQLite || IsMemoryDSN(dsn) {
		return dsn, nil
	}

	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", &Error{Code: "INVALID_CONFIG", Message: fmt.Sprintf("invalid sqlite DSN %q: %v", dsn, err), Err: err}
	}

	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &Error{Code: "INVALID_CONFIG", Message: fmt.Sprintf("create database directory %s: %v", dir, err), Err: err}
		}
	}

	if params.Get("_busy_timeout") == "" && params.Get("_timeout") == "" {
		params.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeout))
	}
	if params.Get("_journal_mode") == "" && params.Get("_journal") == "" {
		params.Set("_journal_mode", "WAL")
	}
	return path + "?" + params.Encode(), nil
}
