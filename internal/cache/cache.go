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
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "cache").Logger()
}

// Backend is the response cache contract shared by the sqlite and in-memory stores.
type Backend interface {
	Get(key string, maxStale time.Duration) (Result, error)
	Set(key string, value []byte, ttl time.Duration) error
	Prune() error
	Close() error
}

// Store is the on-disk cache shared across CLI invocations.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}

	// Concurrent CLI runs race on the WAL switch and the DDL, so schema setup
	// happens under the same file lock as writes.
	err = store.locked(func() error {
		queries := []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
		}
		for _, query := range queries {
			if _, err := db.Exec(query); err != nil {
				return fmt.Errorf("init cache schema: %w", err)
			}
		}
		// Prune expired entries on startup to prevent unbounded growth.
		if err := store.Prune(); err != nil {
			log.Debug().Err(err).Msg("startup prune failed")
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// sqliteDSN adds a busy timeout so readers wait out a concurrent writer
// instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

func (s *Store) locked(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// staleRetention keeps expired entries around so a later invocation can still
// serve them as stale fallback within its --max-stale budget.
const staleRetention = time.Hour

// Prune deletes cache entries expired for longer than staleRetention.
// It is called automatically on Open and can be called manually.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	nowUnix := s.now().UTC().Unix()
	res, err := s.db.Exec("DELETE FROM cache_entries WHERE created_at + ttl_seconds + ? < ?", int64(staleRetention.Seconds()), nowUnix)
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Debug().Int64("entries", n).Msg("pruned expired cache entries")
	}
	return nil
}

func (s *Store) Get(key string, maxStale time.Duration) (Result, error) {
	var value []byte
	var createdUnix int64
	var ttlSeconds int64
	err := s.db.QueryRow("SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key).Scan(&value, &createdUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	created := time.Unix(createdUnix, 0).UTC()
	age := s.now().Sub(created)
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	tooStale := stale && maxStale >= 0 && age > ttl+maxStale

	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: tooStale,
	}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	createdUnix := s.now().UTC().Unix()
	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	return s.locked(func() error {
		_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, createdUnix, ttlSeconds)
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}
