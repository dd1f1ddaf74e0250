// Package db opens the SQLite files backing anvil's persistent caches.
package db

import (
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/sym"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database.
// Scatter children share one cache file, so contention is expected.
const SQLiteBusyTimeoutMS = 5000

// Options controls how a database is opened
type Options struct {
	// ReadOnly opens an existing database without write access and skips WAL setup
	ReadOnly bool
}

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, opts Options, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "read_only", opts.ReadOnly, "symbol", sym.DB)
	}

	db, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	if logger != nil {
		logger.Debugw("Database opened",
			"path", path,
			"symbol", sym.DB,
			"read_only", opts.ReadOnly,
		)
	}

	return db, nil
}

// dsn carries connection settings as driver parameters so every pooled
// connection gets them, not just the one a PRAGMA statement happens to run on.
func dsn(path string, opts Options) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeoutMS))
	if opts.ReadOnly {
		params.Set("mode", "ro")
	} else {
		// WAL lets readers proceed while one writer commits
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + path + "?" + params.Encode()
}
