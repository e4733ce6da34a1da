// Package repository holds the SQL access layer. Every repository takes a
// *sql.DB and speaks the portable subset of SQL shared by MySQL and SQLite;
// timestamps are produced in Go so no dialect-specific time functions are
// needed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a duplicate unique key.
var ErrConflict = errors.New("conflict")

// isUniqueViolation reports whether err is a duplicate-key error from either
// supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// now returns the current time in the precision both dialects store.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// partners runs query, which selects two nullable user id columns, and
// returns the distinct ids other than self.
func partners(ctx context.Context, db *sql.DB, query, self string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var a, b sql.NullString
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		for _, id := range []sql.NullString{a, b} {
			if id.Valid && id.String != "" && id.String != self && !seen[id.String] {
				seen[id.String] = true
				out = append(out, id.String)
			}
		}
	}
	return out, rows.Err()
}
