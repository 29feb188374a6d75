package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/arbor/internal/item"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on items(partition, parent_id)
const currentSchemaVersion = 1

// Item is one live node. It is a read snapshot: mutation happens only
// through Store methods, never by writing to these fields.
type Item struct {
	ID         item.ID
	Partition  string
	ParentID   item.ID
	Name       string
	TemplateID item.ID
	BranchID   item.ID
}

// Store provides durable storage for the live content tree.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	cache    map[cacheKey]*Item
	journal  []Change
	handlers []ChangeHandler
	quiet    bool
}

type cacheKey struct {
	partition string
	id        item.ID
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:    db,
		cache: make(map[cacheKey]*Item),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Quiet suppresses change-handler notifications until the returned restore
// func runs. The prior state is restored, so nested quiet scopes compose:
//
//	restore := s.Quiet()
//	defer restore()
//
// Callers must invoke restore on every exit path; the flag is never left
// stuck.
func (s *Store) Quiet() (restore func()) {
	s.mu.Lock()
	prev := s.quiet
	s.quiet = true
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.quiet = prev
		s.mu.Unlock()
	}
}

// DeserializationComplete signals that a batch load for the partition has
// finished. Cached reads for the partition are dropped and handlers are
// notified once, regardless of quiet state, so listeners can resume from a
// clean slate.
func (s *Store) DeserializationComplete(ctx context.Context, partition string) {
	s.mu.Lock()
	for key := range s.cache {
		if key.partition == partition {
			delete(s.cache, key)
		}
	}
	handlers := make([]ChangeHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	ch := Change{Op: OpBatchComplete, Partition: partition}
	for _, h := range handlers {
		h(ch)
	}
}

// invalidate drops the cached snapshot for one identity.
func (s *Store) invalidate(partition string, id item.ID) {
	s.mu.Lock()
	delete(s.cache, cacheKey{partition: partition, id: id})
	s.mu.Unlock()
}

// cached returns the cached snapshot for an identity, or nil.
func (s *Store) cached(partition string, id item.ID) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[cacheKey{partition: partition, id: id}]
}

// remember stores a read snapshot in the cache.
func (s *Store) remember(it *Item) {
	s.mu.Lock()
	s.cache[cacheKey{partition: it.Partition, id: it.ID}] = it
	s.mu.Unlock()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// Index creation is a no-op when schema.sql already made it.
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(partition, parent_id)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// nullableID renders uuid.Nil as SQL NULL.
func nullableID(id item.ID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

// scanID parses a nullable id column.
func scanID(v sql.NullString) (item.ID, error) {
	if !v.Valid || v.String == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(v.String)
}
