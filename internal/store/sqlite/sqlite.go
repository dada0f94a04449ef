package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
)

// Schema creates the session audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	device          TEXT NOT NULL DEFAULT '',
	connected_at    DATETIME NOT NULL,
	disconnected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_disconnected ON sessions(disconnected_at DESC);
`

const defaultListLimit = 50

// SQLiteStore implements store.SessionStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without touching a file.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordSession stores a finished connection. Recording the same id twice
// replaces the earlier row.
func (s *SQLiteStore) RecordSession(ctx context.Context, sess store.Session) error {
	query := `
		INSERT OR REPLACE INTO sessions (id, name, device, connected_at, disconnected_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.Name, sess.Device,
		sess.ConnectedAt.UTC(), sess.DisconnectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves one session by connection id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	query := `
		SELECT id, name, device, connected_at, disconnected_at
		FROM sessions
		WHERE id = ?
	`
	var sess store.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.Name, &sess.Device, &sess.ConnectedAt, &sess.DisconnectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns up to limit sessions, newest disconnect first.
// A non-positive limit selects the default page size.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, name, device, connected_at, disconnected_at
		FROM sessions
		ORDER BY disconnected_at DESC, id ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]store.Session, 0, limit)
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.Device, &sess.ConnectedAt, &sess.DisconnectedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// PruneBefore deletes sessions that ended before cutoff and reports how many.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE disconnected_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

var _ store.SessionStore = (*SQLiteStore)(nil)
