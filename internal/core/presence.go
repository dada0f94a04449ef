package core

import "time"

// Presence maps connected client ids to their records, in connect order.
// It is not safe for concurrent use; the Hub serializes access.
type Presence struct {
	order   []ClientID
	clients map[ClientID]*ClientState
	now     func() time.Time
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		clients: make(map[ClientID]*ClientState),
		now:     time.Now,
	}
}

// Register creates a default record for id.
func (p *Presence) Register(id ClientID) error {
	if _, exists := p.clients[id]; exists {
		return ErrClientExists
	}
	p.clients[id] = &ClientState{
		ID:          id,
		Device:      DeviceWeb,
		ConnectedAt: p.now(),
	}
	p.order = append(p.order, id)
	return nil
}

// SetIdentity sets name and device class. Calling it again overwrites both.
func (p *Presence) SetIdentity(id ClientID, name string, device DeviceClass) error {
	c, ok := p.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	if device == "" {
		device = DeviceWeb
	}
	c.Name = name
	c.Device = device
	return nil
}

// Remove deletes the record. Channel membership must already be cleared.
func (p *Presence) Remove(id ClientID) error {
	if _, ok := p.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(p.clients, id)
	for i, cid := range p.order {
		if cid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetTransmitting updates the flag and reports whether it changed.
func (p *Presence) SetTransmitting(id ClientID, on bool) (bool, error) {
	c, ok := p.clients[id]
	if !ok {
		return false, ErrClientNotFound
	}
	if c.Transmitting == on {
		return false, nil
	}
	c.Transmitting = on
	return true, nil
}

func (p *Presence) setChannel(id ClientID, channel string) error {
	c, ok := p.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.Channel = channel
	return nil
}

// Get returns a copy of the record.
func (p *Presence) Get(id ClientID) (ClientState, bool) {
	c, ok := p.clients[id]
	if !ok {
		return ClientState{}, false
	}
	return *c, true
}

// Has reports whether id is connected.
func (p *Presence) Has(id ClientID) bool {
	_, ok := p.clients[id]
	return ok
}

// Snapshot lists named clients in connect order.
func (p *Presence) Snapshot() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(p.order))
	for _, id := range p.order {
		c := p.clients[id]
		if !c.Named() {
			continue
		}
		out = append(out, c.entry())
	}
	return out
}

// IDs lists every connected client, named or not, in connect order.
func (p *Presence) IDs() []ClientID {
	out := make([]ClientID, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of connected clients.
func (p *Presence) Len() int {
	return len(p.clients)
}
