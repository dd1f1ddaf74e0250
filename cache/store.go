// Package cache is a SQLite key/value store shared across workers and processes.
package cache

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/anvil/db"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/sym"
)

// cullFraction is how far below the ceiling a cull pass shrinks the store
const cullFraction = 0.9

// cullBatch bounds rows deleted per statement while culling
const cullBatch = 256

// Options configures a Store
type Options struct {
	// MaxBytes is the ceiling on summed key+value sizes; 0 = unbounded.
	// Oldest-stored entries are culled first.
	MaxBytes int64
	// ReadOnly opens an existing store; writes return db.ErrReadOnly
	ReadOnly bool
}

// Stats counts lookups since the store was opened
type Stats struct {
	Hits   int64 `json:"hits" yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
}

// Entry is one key/value pair for SetBatch
type Entry struct {
	Key   string
	Value []byte
}

// Store is safe for concurrent use. Reads go straight to SQLite;
// writes are serialized in-process and by SQLite's lock across processes.
type Store struct {
	conn   *sql.DB
	opts   Options
	logger *zap.SugaredLogger

	writeMu   sync.Mutex
	size      int64 // approximate, guarded by writeMu
	lastStamp int64 // guarded by writeMu

	hits   atomic.Int64
	misses atomic.Int64
	closed atomic.Bool
}

// Open opens (and for writable stores, migrates) the store at path
func Open(path string, opts Options, logger *zap.SugaredLogger) (*Store, error) {
	conn, err := db.Open(path, db.Options{ReadOnly: opts.ReadOnly}, logger)
	if err != nil {
		return nil, err
	}
	if !opts.ReadOnly {
		if err := db.Migrate(conn, logger); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to migrate cache %s", path)
		}
	}
	s, err := New(conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "cache %s", path)
	}
	return s, nil
}

// New wraps an open, migrated connection
func New(conn *sql.DB, opts Options, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Store{conn: conn, opts: opts, logger: logger}
	if !opts.ReadOnly && opts.MaxBytes > 0 {
		size, err := s.Size()
		if err != nil {
			return nil, err
		}
		s.size = size
	}
	return s, nil
}

// Get returns the value stored under key
func (s *Store) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, db.ErrDatabaseClosed
	}
	var value []byte
	err := s.conn.QueryRow("SELECT value FROM cache_entries WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.misses.Add(1)
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "failed to read cache key %s", key)
	}
	s.hits.Add(1)
	return value, true, nil
}

// Has reports whether key is present
func (s *Store) Has(key string) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(key string, value []byte) error {
	return s.SetBatch([]Entry{{Key: key, Value: value}})
}

// SetBatch stores entries in one transaction
func (s *Store) SetBatch(entries []Entry) error {
	if s.closed.Load() {
		return db.ErrDatabaseClosed
	}
	if s.opts.ReadOnly {
		return db.ErrReadOnly
	}
	if len(entries) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin cache write")
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO cache_entries (key, value, size, stored_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to prepare cache write")
	}
	defer stmt.Close()

	var added int64
	for _, e := range entries {
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		size := int64(len(e.Key) + len(value))
		if _, err := stmt.Exec(e.Key, value, size, s.stamp()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to write cache key %s", e.Key)
		}
		added += size
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit cache write")
	}

	s.size += added
	if s.opts.MaxBytes > 0 && s.size > s.opts.MaxBytes {
		return s.cull()
	}
	return nil
}

// stamp returns a strictly increasing store time so insertion order survives clock ties
func (s *Store) stamp() int64 {
	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// cull deletes oldest entries until the store is under cullFraction of MaxBytes.
// Caller holds writeMu.
func (s *Store) cull() error {
	// other processes write to the same file, so re-measure first
	size, err := s.Size()
	if err != nil {
		return err
	}
	target := int64(float64(s.opts.MaxBytes) * cullFraction)
	removed := 0
	for size > target {
		count, err := s.Len()
		if err != nil {
			return err
		}
		if count == 0 {
			break
		}
		avg := size / int64(count)
		if avg < 1 {
			avg = 1
		}
		need := (size - target + avg - 1) / avg
		if need > cullBatch {
			need = cullBatch
		}
		res, err := s.conn.Exec(
			"DELETE FROM cache_entries WHERE key IN (SELECT key FROM cache_entries ORDER BY stored_at LIMIT ?)",
			need,
		)
		if err != nil {
			return errors.Wrap(err, "failed to cull cache")
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			break
		}
		removed += int(n)
		if size, err = s.Size(); err != nil {
			return err
		}
	}
	s.size = size
	s.logger.Debugw("Culled cache", "removed", removed, "bytes", size, "symbol", sym.DB)
	return nil
}

// Len returns the number of entries
func (s *Store) Len() (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count cache entries")
	}
	return n, nil
}

// Size returns the summed key+value bytes
func (s *Store) Size() (int64, error) {
	var n int64
	if err := s.conn.QueryRow("SELECT COALESCE(SUM(size), 0) FROM cache_entries").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to measure cache")
	}
	return n, nil
}

// Stats returns hit/miss counts
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// ReadOnly reports whether writes are rejected
func (s *Store) ReadOnly() bool {
	return s.opts.ReadOnly
}

// Close closes the underlying connection. Safe to call twice.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
