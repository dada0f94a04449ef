package core

import (
	"strings"
	"sync"
	"time"
)

// ClientID identifies one connection for its whole lifetime.
type ClientID string

// DeviceClass is a capability flag consumed by clients; routing never branches on it.
type DeviceClass string

const (
	DeviceWeb        DeviceClass = "web"
	DeviceAndroid    DeviceClass = "android"
	DeviceInricoT320 DeviceClass = "inrico_t320"
)

// ParseDeviceClass maps a wire value to a known class. Unknown values fall back to web.
func ParseDeviceClass(s string) DeviceClass {
	switch DeviceClass(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceAndroid:
		return DeviceAndroid
	case DeviceInricoT320:
		return DeviceInricoT320
	default:
		return DeviceWeb
	}
}

const defaultMailboxSize = 64

// Client is the transport-side handle of a connection: commands flow in,
// events flow out.
type Client struct {
	ID       ClientID
	Commands chan *Command
	Events   chan *Event

	quit     chan struct{}
	quitOnce sync.Once
}

// NewClient constructs a client with buffered command and event channels.
// A non-positive buffer selects the default size.
func NewClient(id ClientID, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultMailboxSize
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		quit:     make(chan struct{}),
	}
}

func (c *Client) stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// ClientState is the presence record of a connected client.
type ClientState struct {
	ID           ClientID
	Name         string
	Device       DeviceClass
	Channel      string
	Transmitting bool
	ConnectedAt  time.Time
}

// Named reports whether the client has registered a display name.
func (s ClientState) Named() bool {
	return s.Name != ""
}

// PresenceEntry is the public view of a named client.
type PresenceEntry struct {
	ID     ClientID
	Name   string
	Device DeviceClass
}

func (s *ClientState) entry() PresenceEntry {
	return PresenceEntry{ID: s.ID, Name: s.Name, Device: s.Device}
}
