package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/anvil/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database in WAL mode", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, Options{}, nil)
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", Options{}, nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("read-only rejects writes", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "ro.db")
		rw, err := Open(dbPath, Options{}, nil)
		require.NoError(t, err)
		require.NoError(t, Migrate(rw, nil))
		require.NoError(t, rw.Close())

		ro, err := Open(dbPath, Options{ReadOnly: true}, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer ro.Close()

		var n int
		require.NoError(t, ro.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n))
		assert.Zero(t, n)

		_, err = ro.Exec("INSERT INTO cache_entries (key, value, size, stored_at) VALUES ('k', x'00', 2, 0)")
		assert.Error(t, err)
	})

	t.Run("read-only missing file fails", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "missing.db"), Options{ReadOnly: true}, nil)
		if err == nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})
}

func TestOpen_SettingsOnEveryConnection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pool.db")
	ctx := context.Background()

	for _, opts := range []Options{{}, {ReadOnly: true}} {
		db, err := Open(dbPath, opts, nil)
		require.NoError(t, err)
		db.SetMaxOpenConns(4)

		// Hold four connections at once so the pool has to dial each of them
		conns := make([]*sql.Conn, 4)
		for i := range conns {
			conns[i], err = db.Conn(ctx)
			require.NoError(t, err)
		}
		for i, conn := range conns {
			var busyTimeout int
			require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
			assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout, "read_only=%v conn %d", opts.ReadOnly, i)

			if !opts.ReadOnly {
				var synchronous int
				require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous))
				assert.Equal(t, 1, synchronous, "conn %d synchronous=NORMAL", i)
			}
		}
		for _, conn := range conns {
			require.NoError(t, conn.Close())
		}
		require.NoError(t, db.Close())
	}
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "get")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("constraint failed")))
	assert.True(t, IsBusy(errors.New("database is locked")))
}
