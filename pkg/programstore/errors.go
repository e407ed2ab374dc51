package programstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRowData marks failures caused by the content of a single row.
var ErrRowData = errors.New("row data error")

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("ingest_run not found")

// SQLite primary result codes that describe a single bad row.
const (
	sqliteTooBig     = 18
	sqliteConstraint = 19
	sqliteMismatch   = 20
	sqliteRange      = 25
)

// IsRowScoped reports whether err was caused by one row's data (constraint
// violations, type mismatches, oversize values) rather than by the store
// itself. Cancellation and connectivity failures are never row-scoped.
func IsRowScoped(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRowData) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 22: data exception. Class 23: integrity constraint violation.
		return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteTooBig, sqliteConstraint, sqliteMismatch, sqliteRange:
			return true
		}
		return false
	}

	// libsql surfaces SQLite errors as plain strings.
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"constraint failed", "datatype mismatch", "string or blob too big", "sqlite_constraint"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
