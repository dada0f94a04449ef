package core

import "sort"

// ChannelSpec seeds one channel at startup.
type ChannelSpec struct {
	ID          string
	Name        string
	Description string
}

// ChannelInfo is the public view of a channel. Member ids are never exposed here.
type ChannelInfo struct {
	ID          string
	Name        string
	Description string
	Members     int
}

// Channel groups clients that hear each other.
type Channel struct {
	ChannelSpec
	members map[ClientID]struct{}
}

func newChannel(spec ChannelSpec) *Channel {
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	return &Channel{
		ChannelSpec: spec,
		members:     make(map[ClientID]struct{}),
	}
}

func (ch *Channel) info() ChannelInfo {
	return ChannelInfo{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		Members:     len(ch.members),
	}
}

// Channels holds the fixed channel set and who is in which channel.
// A client is a member of at most one channel. It is not safe for concurrent
// use; the Hub serializes access.
type Channels struct {
	order    []string
	byID     map[string]*Channel
	memberOf map[ClientID]string
	known    func(ClientID) bool
}

// NewChannels seeds the registry in the given order. Later duplicates of an
// id are ignored. known, if non-nil, decides whether a client id may join.
func NewChannels(seed []ChannelSpec, known func(ClientID) bool) *Channels {
	c := &Channels{
		byID:     make(map[string]*Channel, len(seed)),
		memberOf: make(map[ClientID]string),
		known:    known,
	}
	for _, spec := range seed {
		if spec.ID == "" {
			continue
		}
		if _, dup := c.byID[spec.ID]; dup {
			continue
		}
		c.byID[spec.ID] = newChannel(spec)
		c.order = append(c.order, spec.ID)
	}
	return c
}

// List returns every channel with its current member count, in seed order.
func (c *Channels) List() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].info())
	}
	return out
}

// Exists reports whether id names a configured channel.
func (c *Channels) Exists(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the public view of one channel.
func (c *Channels) Get(id string) (ChannelInfo, bool) {
	ch, ok := c.byID[id]
	if !ok {
		return ChannelInfo{}, false
	}
	return ch.info(), true
}

// Join makes client a member of channelID, leaving its current channel first.
// It reports false when the client already was a member of channelID.
func (c *Channels) Join(client ClientID, channelID string) (bool, error) {
	ch, ok := c.byID[channelID]
	if !ok {
		return false, ErrChannelNotFound
	}
	if c.known != nil && !c.known(client) {
		return false, ErrClientNotFound
	}

	current, joined := c.memberOf[client]
	if joined && current == channelID {
		return false, nil
	}
	if joined {
		c.Leave(client, current)
	}
	ch.members[client] = struct{}{}
	c.memberOf[client] = channelID
	return true, nil
}

// Leave removes client from channelID. It is a no-op when the client is not a
// member and reports whether anything was removed.
func (c *Channels) Leave(client ClientID, channelID string) bool {
	ch, ok := c.byID[channelID]
	if !ok {
		return false
	}
	if _, member := ch.members[client]; !member {
		return false
	}
	delete(ch.members, client)
	if c.memberOf[client] == channelID {
		delete(c.memberOf, client)
	}
	return true
}

// ChannelOf returns the channel the client is a member of.
func (c *Channels) ChannelOf(client ClientID) (string, bool) {
	id, ok := c.memberOf[client]
	return id, ok
}

// MembersExcluding returns a sorted copy of the channel's members without excluded.
func (c *Channels) MembersExcluding(channelID string, excluded ClientID) []ClientID {
	ch, ok := c.byID[channelID]
	if !ok {
		return nil
	}
	out := make([]ClientID, 0, len(ch.members))
	for id := range ch.members {
		if id == excluded {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
