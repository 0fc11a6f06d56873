package cib

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"clusterd/internal/logging"
)

var log = logging.For("cib")

// SQLiteStore is the concrete, out-of-scope Store adapter standing in for
// the real CIB. Schema and pragma choices follow a WAL-mode sql.Open(...)
// pragma string and an ensureSchema/persistNode upsert-via-ON-CONFLICT
// pattern, generalized from a single node table to a (section, host, set,
// name) -> value table.
type SQLiteStore struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers map[int]func(ChangeEvent)
	nextSubID   int
}

// OpenSQLiteStore opens (creating if needed) a SQLite-backed store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("cib: open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db, subscribers: make(map[int]func(ChangeEvent))}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.WithField("path", path).Info("cib: sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cib_attributes (
			section TEXT NOT NULL,
			host    TEXT NOT NULL,
			set_id  TEXT NOT NULL,
			name    TEXT NOT NULL,
			value   TEXT NOT NULL,
			acting_user TEXT NOT NULL DEFAULT '',
			updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (section, host, set_id, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("cib: schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Update(ctx context.Context, key Key, value string, actingUser string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cib_attributes (section, host, set_id, name, value, acting_user, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(section, host, set_id, name) DO UPDATE SET
			value=excluded.value, acting_user=excluded.acting_user, updated_at=excluded.updated_at
	`, key.Section, key.Host, key.Set, key.Name, value, actingUser)
	if err != nil {
		return fmt.Errorf("cib: update %+v: %w", key, err)
	}
	s.notify(ChangeEvent{Key: key, Value: value})
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key, actingUser string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cib_attributes WHERE section=? AND host=? AND set_id=? AND name=?
	`, key.Section, key.Host, key.Set, key.Name)
	if err != nil {
		return fmt.Errorf("cib: delete %+v: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notify(ChangeEvent{Key: key, Deleted: true})
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, key Key) (<-chan QueryResult, error) {
	out := make(chan QueryResult, 1)
	go func() {
		defer close(out)
		row := s.db.QueryRowContext(ctx, `
			SELECT value FROM cib_attributes WHERE section=? AND host=? AND set_id=? AND name=?
		`, key.Section, key.Host, key.Set, key.Name)
		var value string
		switch err := row.Scan(&value); err {
		case nil:
			out <- QueryResult{Value: value, Found: true}
		case sql.ErrNoRows:
			out <- QueryResult{Found: false}
		default:
			out <- QueryResult{Err: fmt.Errorf("cib: query %+v: %w", key, err)}
		}
	}()
	return out, nil
}

func (s *SQLiteStore) DeleteMatching(ctx context.Context, section, host string, re Matcher, actingUser string) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT set_id, name FROM cib_attributes WHERE section=? AND host=?`, section, host)
	if err != nil {
		return nil, fmt.Errorf("cib: delete-matching scan: %w", err)
	}
	var matched []Key
	func() {
		defer rows.Close()
		for rows.Next() {
			var setID, name string
			if err := rows.Scan(&setID, &name); err != nil {
				continue
			}
			if re.MatchString(name) {
				matched = append(matched, Key{Section: section, Host: host, Set: setID, Name: name})
			}
		}
	}()

	for _, k := range matched {
		if err := s.Delete(ctx, k, actingUser); err != nil && err != ErrNotFound {
			return matched, err
		}
	}
	return matched, nil
}

func (s *SQLiteStore) Subscribe(fn func(ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *SQLiteStore) notify(ev ChangeEvent) {
	s.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

var _ Store = (*SQLiteStore)(nil)
