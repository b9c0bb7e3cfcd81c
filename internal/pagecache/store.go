package pagecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Page is a rendered response.
type Page struct {
	Body        []byte
	ContentType string
	Status      int
	GeneratedAt time.Time
}

// Store persists rendered pages by key.
type Store interface {
	Get(ctx context.Context, key string) (Page, bool, error)
	Put(ctx context.Context, key string, p Page) error
	Clear(ctx context.Context) error
	Close() error
}

// MemoryStore keeps pages in a map. Pages are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]Page
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]Page)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Page, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[key]
	return p, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, p Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = p
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pages)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	key          TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL,
	status       INTEGER NOT NULL,
	generated_at INTEGER NOT NULL
)`

// SQLiteStore keeps pages in a SQLite database so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Page, bool, error) {
	var (
		p     Page
		nanos int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, content_type, status, generated_at FROM pages WHERE key = ?`, key,
	).Scan(&p.Body, &p.ContentType, &p.Status, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("get page %s: %w", key, err)
	}
	p.GeneratedAt = time.Unix(0, nanos)
	return p, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, p Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (key, body, content_type, status, generated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			status = excluded.status,
			generated_at = excluded.generated_at`,
		key, p.Body, p.ContentType, p.Status, p.GeneratedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put page %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
