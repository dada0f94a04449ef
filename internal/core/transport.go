package core

import "sync"

// Transport delivers events to connected clients. Send must not block: it
// either enqueues the event or fails.
type Transport interface {
	Send(to ClientID, ev *Event) error
}

// Mailboxes is the in-process Transport: every client owns a bounded Events
// channel that its connection drains.
type Mailboxes struct {
	mu     sync.RWMutex
	boxes  map[ClientID]*Client
	closed bool
}

// NewMailboxes creates an empty mailbox set.
func NewMailboxes() *Mailboxes {
	return &Mailboxes{boxes: make(map[ClientID]*Client)}
}

// Add opens the mailbox of c. After CloseAll it refuses new mailboxes and
// closes c.Events right away.
func (m *Mailboxes) Add(c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(c.Events)
		return ErrHubClosed
	}
	m.boxes[c.ID] = c
	return nil
}

// Remove closes the mailbox of id so its reader observes the end of stream.
func (m *Mailboxes) Remove(id ClientID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.boxes[id]
	if !ok {
		return false
	}
	delete(m.boxes, id)
	close(c.Events)
	return true
}

// CloseAll closes every mailbox.
func (m *Mailboxes) CloseAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	n := len(m.boxes)
	for id, c := range m.boxes {
		delete(m.boxes, id)
		close(c.Events)
	}
	return n
}

// Send enqueues ev for to without blocking.
func (m *Mailboxes) Send(to ClientID, ev *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.boxes[to]
	if !ok {
		return ErrClientGone
	}
	select {
	case c.Events <- ev:
		return nil
	default:
		return ErrBackpressure
	}
}

var _ Transport = (*Mailboxes)(nil)
