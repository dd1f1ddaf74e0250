package db

import (
	"strings"

	"github.com/teranos/anvil/errors"
)

// ErrDatabaseClosed is returned when a store is used after Close
var ErrDatabaseClosed = errors.New("database is closed")

// ErrReadOnly is returned when a write reaches a store opened read-only
var ErrReadOnly = errors.New("database is read-only")

// IsDatabaseClosed reports whether err means the connection is gone,
// matching raw driver messages the driver does not let us wrap.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether err is SQLite lock contention that outlasted the busy timeout
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
