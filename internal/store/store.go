package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Session is the audit record of one finished connection.
type Session struct {
	ID             string
	Name           string // empty when the client never registered
	Device         string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
}

// Duration is how long the connection stayed open.
func (s Session) Duration() time.Duration {
	return s.DisconnectedAt.Sub(s.ConnectedAt)
}

// SessionStore persists the connection audit log.
type SessionStore interface {
	RecordSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns the most recently finished sessions first.
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	Close() error
}
