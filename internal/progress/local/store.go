// Package local is the on-device progress store.
//
// Values are JSON documents keyed by a scope key (see schema.LocalKey) in an
// embedded SQLite file opened in WAL mode. The store never interrupts its
// caller: corrupt documents read as absent, and when the file cannot be used
// the store keeps working in memory for the rest of the session.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Store is a key-value store of JSON documents.
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *sql.DB           // nil once the store runs in memory
	mem      map[string][]byte // write-through copy of every document seen
	inMemory bool
}

// Open opens (creating if needed) the store file at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS scopes (
		scope_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,      -- JSON document
		updated_at TEXT NOT NULL
	);`
	if _, err := conn.Exec(ddl); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	return &Store{
		path:   path,
		logger: logger,
		conn:   conn,
		mem:    make(map[string][]byte),
	}, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:   logger,
		mem:      make(map[string][]byte),
		inMemory: true,
	}
}

// OpenOrMemory opens the file store and falls back to memory when the file
// cannot be used. It always returns a usable store.
func OpenOrMemory(path string, logger *zap.Logger) *Store {
	s, err := Open(path, logger)
	if err == nil {
		return s
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("local store unavailable, keeping progress in memory",
		zap.String("path", path),
		zap.Error(fmt.Errorf("%w: %w", schema.ErrStorageUnavailable, err)))
	return NewMemory(logger)
}

// InMemory reports whether the store has lost (or never had) its file.
func (s *Store) InMemory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inMemory
}

// Load decodes the document at key into dst. It returns false when nothing
// usable is stored.
func (s *Store) Load(ctx context.Context, key string, dst any) bool {
	s.mu.Lock()
	data, ok := s.read(ctx, key)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("discarding corrupt stored progress",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %w", schema.ErrSerialization, err)))
		_ = s.Clear(ctx, key)
		return false
	}
	return true
}

// Save stores v at key. The value is always kept in memory; a returned error
// wraps schema.ErrStorageUnavailable and only means it was not written to
// disk.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", schema.ErrSerialization, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem[key] = data
	if s.inMemory {
		return nil
	}

	const q = `
	INSERT INTO scopes (scope_key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(scope_key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`
	if _, err := s.conn.ExecContext(ctx, q, key, string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return s.degrade(err)
	}
	return nil
}

// Clear removes the document at key.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mem, key)
	if s.inMemory {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM scopes WHERE scope_key = ?`, key); err != nil {
		return s.degrade(err)
	}
	return nil
}

// Keys lists stored keys with the given prefix in sorted order.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for k := range s.mem {
		if strings.HasPrefix(k, prefix) {
			seen[k] = true
		}
	}

	if !s.inMemory {
		rows, err := s.conn.QueryContext(ctx,
			`SELECT scope_key FROM scopes WHERE substr(scope_key, 1, ?) = ?`, len(prefix), prefix)
		if err != nil {
			s.logger.Warn("failed to list stored scopes", zap.Error(err))
		} else {
			for rows.Next() {
				var k string
				if err := rows.Scan(&k); err == nil {
					seen[k] = true
				}
			}
			_ = rows.Close()
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close releases the file. A memory store closes trivially.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL", zap.Error(err))
	}
	err := s.conn.Close()
	s.conn = nil
	s.inMemory = true
	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// read returns the raw document at key. Caller holds s.mu.
func (s *Store) read(ctx context.Context, key string) ([]byte, bool) {
	if s.inMemory {
		data, ok := s.mem[key]
		return data, ok
	}

	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM scopes WHERE scope_key = ?`, key).Scan(&value)
	switch {
	case err == nil:
		s.mem[key] = []byte(value)
		return []byte(value), true
	case errors.Is(err, sql.ErrNoRows):
		return nil, false
	default:
		_ = s.degrade(err)
		data, ok := s.mem[key]
		return data, ok
	}
}

// degrade switches the store to memory for the rest of the session after a
// medium failure. Caller holds s.mu.
func (s *Store) degrade(cause error) error {
	err := fmt.Errorf("%w: %w", schema.ErrStorageUnavailable, cause)
	if s.inMemory {
		return err
	}

	// Best effort: pull in documents this session has not read yet.
	if rows, qerr := s.conn.Query(`SELECT scope_key, value FROM scopes`); qerr == nil {
		for rows.Next() {
			var k, v string
			if rows.Scan(&k, &v) == nil {
				if _, seen := s.mem[k]; !seen {
					s.mem[k] = []byte(v)
				}
			}
		}
		_ = rows.Close()
	}

	s.inMemory = true
	s.logger.Error("local store failed, continuing in memory for this session",
		zap.String("path", s.path), zap.Error(err))
	return err
}
