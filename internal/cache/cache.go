// Package cache is a small sqlite-backed key/value store shared by CLI
// invocations. Writers serialize on a file lock so concurrent processes
// do not trip over sqlite's busy handling.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Forever marks an entry that never expires.
const Forever time.Duration = 0

const lockTimeout = 5 * time.Second

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

type Entry struct {
	Value   []byte
	Age     time.Duration
	Expired bool
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	schema := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			expires_at INTEGER
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	s := &Store{db: db, lock: flock.New(lockPath)}
	_ = s.Prune()
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune removes expired entries.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.withLock(func() error {
		_, err := s.db.Exec("DELETE FROM entries WHERE expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("prune cache: %w", err)
		}
		return nil
	})
}

// Get returns the stored entry. ok is false when the key is absent.
// Expired entries are still returned with Expired set; callers decide
// whether a stale value is acceptable.
func (s *Store) Get(key string) (Entry, bool, error) {
	var (
		value    []byte
		storedAt int64
		expires  sql.NullInt64
	)
	err := s.db.QueryRow("SELECT value, stored_at, expires_at FROM entries WHERE key = ?", key).Scan(&value, &storedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache read: %w", err)
	}

	now := time.Now().UTC()
	age := now.Sub(time.Unix(storedAt, 0))
	if age < 0 {
		age = 0
	}
	return Entry{
		Value:   value,
		Age:     age,
		Expired: expires.Valid && now.Unix() > expires.Int64,
	}, true, nil
}

// Set upserts key. A ttl of Forever stores the value without expiry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	var expires sql.NullInt64
	if ttl != Forever {
		secs := int64(ttl.Seconds())
		if secs <= 0 {
			secs = 1
		}
		expires = sql.NullInt64{Int64: now.Unix() + secs, Valid: true}
	}
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO entries (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, stored_at=excluded.stored_at, expires_at=excluded.expires_at
		`, key, value, now.Unix(), expires)
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(key string) error {
	return s.withLock(func() error {
		if _, err := s.db.Exec("DELETE FROM entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
