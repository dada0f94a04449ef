package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub coordinates presence, channel membership, signaling and push-to-talk.
// All state changes happen under one lock and the resulting events are
// enqueued before the lock is released, so every recipient observes them in
// the same order the state changed.
type Hub struct {
	mu        sync.RWMutex
	presence  *Presence
	channels  *Channels
	mailboxes *Mailboxes
	transport Transport
	log       *zerolog.Logger

	startedAt    time.Time
	maxClients   int
	maxClientsAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for lifecycle and drop diagnostics.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithTransport replaces the in-process mailboxes as the delivery target.
func WithTransport(t Transport) Option {
	return func(h *Hub) {
		if t != nil {
			h.transport = t
		}
	}
}

// NewHub creates a hub with the given channel set.
func NewHub(seed []ChannelSpec, opts ...Option) *Hub {
	nop := zerolog.Nop()
	now := time.Now()
	h := &Hub{
		presence:     NewPresence(),
		mailboxes:    NewMailboxes(),
		log:          &nop,
		startedAt:    now,
		maxClientsAt: now,
		done:         make(chan struct{}),
	}
	h.channels = NewChannels(seed, h.presence.Has)
	h.transport = h.mailboxes
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run blocks until ctx is cancelled, then stops command processing and closes
// every mailbox.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Int("channels", len(h.Channels())).Msg("hub started")
	<-ctx.Done()
	h.doneOnce.Do(func() { close(h.done) })
	n := h.mailboxes.CloseAll()
	h.log.Info().Int("clients", n).Msg("hub stopped")
}

// RegisterClient connects c and starts processing its commands.
func (h *Hub) RegisterClient(c *Client) error {
	if err := h.Connect(c.ID); err != nil {
		return err
	}
	if err := h.mailboxes.Add(c); err != nil {
		_ = h.Disconnect(c.ID)
		return err
	}
	go h.pump(c)
	return nil
}

// UnregisterClient stops command processing for c, runs the disconnect
// cleanup and closes its mailbox.
func (h *Hub) UnregisterClient(c *Client) {
	c.stop()
	if err := h.Disconnect(c.ID); err != nil {
		h.log.Debug().Err(err).Str("client_id", string(c.ID)).Msg("unregister")
	}
	h.mailboxes.Remove(c.ID)
}

func (h *Hub) pump(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			h.Handle(c.ID, cmd)
		case <-c.quit:
			return
		case <-h.done:
			return
		}
	}
}

// Connect creates the presence record for a new connection.
func (h *Hub) Connect(id ClientID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.presence.Register(id); err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}
	if n := h.presence.Len(); n > h.maxClients {
		h.maxClients = n
		h.maxClientsAt = time.Now()
	}
	h.log.Debug().Str("client_id", string(id)).Int("clients", h.presence.Len()).Msg("client connected")
	return nil
}

// Disconnect removes every trace of id: an active transmission is stopped,
// channel members are told the client left, and everyone still connected
// receives fresh presence and channel lists.
func (h *Hub) Disconnect(id ClientID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.presence.Get(id)
	if !ok {
		return fmt.Errorf("disconnect %s: %w", id, ErrClientNotFound)
	}
	if st.Channel != "" {
		h.leaveLocked(st, ReasonDisconnected)
	}
	if err := h.presence.Remove(id); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	h.broadcastLocked(h.presenceEventLocked())
	h.broadcastLocked(h.channelsEventLocked())
	h.log.Debug().Str("client_id", string(id)).Str("name", st.Name).Msg("client disconnected")
	return nil
}

// Handle applies one command from id. Commands that are invalid for the
// current state are dropped without a reply.
func (h *Hub) Handle(id ClientID, cmd *Command) {
	if cmd == nil {
		return
	}
	switch cmd.Kind {
	case CommandSignal, CommandAudioFrame:
		h.mu.RLock()
		defer h.mu.RUnlock()
	default:
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	st, ok := h.presence.Get(id)
	if !ok {
		h.drop(id, cmd, "client not connected")
		return
	}

	switch cmd.Kind {
	case CommandRegister:
		h.registerLocked(st, cmd)
	case CommandJoinChannel:
		h.joinLocked(st, cmd)
	case CommandLeaveChannel:
		if st.Channel == "" {
			h.drop(id, cmd, "not in a channel")
			return
		}
		h.leaveLocked(st, ReasonLeft)
		h.broadcastLocked(h.channelsEventLocked())
	case CommandSignal:
		h.signalLocked(st, cmd)
	case CommandPTTStart:
		h.transmitLocked(st, cmd, true)
	case CommandPTTStop:
		h.transmitLocked(st, cmd, false)
	case CommandAudioFrame:
		h.audioLocked(st, cmd)
	default:
		h.drop(id, cmd, "unknown command")
	}
}

func (h *Hub) registerLocked(st ClientState, cmd *Command) {
	if err := h.presence.SetIdentity(st.ID, cmd.Name, cmd.Device); err != nil {
		h.drop(st.ID, cmd, err.Error())
		return
	}
	h.log.Info().
		Str("client_id", string(st.ID)).
		Str("name", cmd.Name).
		Str("device", string(cmd.Device)).
		Msg("client registered")
	h.broadcastLocked(h.presenceEventLocked())
}

func (h *Hub) joinLocked(st ClientState, cmd *Command) {
	if !h.channels.Exists(cmd.Channel) {
		h.drop(st.ID, cmd, "unknown channel")
		return
	}
	if current, joined := h.channels.ChannelOf(st.ID); joined && current != cmd.Channel {
		h.leaveLocked(st, ReasonSwitched)
	}

	others := h.channels.MembersExcluding(cmd.Channel, st.ID)
	changed, err := h.channels.Join(st.ID, cmd.Channel)
	if err != nil {
		h.drop(st.ID, cmd, err.Error())
		return
	}
	if !changed {
		return
	}
	if err := h.presence.setChannel(st.ID, cmd.Channel); err != nil {
		h.drop(st.ID, cmd, err.Error())
		return
	}

	h.sendAllLocked(others, &Event{
		Kind:    EventUserJoined,
		Channel: cmd.Channel,
		From:    st.ID,
		Name:    st.Name,
		Device:  st.Device,
	})
	h.sendLocked(st.ID, &Event{
		Kind:    EventChannelJoined,
		Channel: cmd.Channel,
		Clients: h.entriesLocked(others),
	})
	h.broadcastLocked(h.channelsEventLocked())
}

// leaveLocked removes st from its channel. A transmission in progress is
// stopped first so listeners never see a speaker who is no longer there.
func (h *Hub) leaveLocked(st ClientState, reason string) {
	channel := st.Channel
	others := h.channels.MembersExcluding(channel, st.ID)

	if st.Transmitting {
		if changed, _ := h.presence.SetTransmitting(st.ID, false); changed {
			h.sendAllLocked(others, &Event{
				Kind:    EventTransmissionStopped,
				Channel: channel,
				From:    st.ID,
				Name:    st.Name,
				Reason:  reason,
			})
		}
	}

	h.channels.Leave(st.ID, channel)
	_ = h.presence.setChannel(st.ID, "")

	h.sendAllLocked(others, &Event{
		Kind:    EventUserLeft,
		Channel: channel,
		From:    st.ID,
		Name:    st.Name,
		Device:  st.Device,
		Reason:  reason,
	})
}

func (h *Hub) signalLocked(st ClientState, cmd *Command) {
	switch {
	case !cmd.Signal.Valid():
		h.drop(st.ID, cmd, "unknown signal kind")
		return
	case cmd.Target == "":
		h.drop(st.ID, cmd, "missing target")
		return
	case cmd.Target == st.ID:
		h.drop(st.ID, cmd, "self target")
		return
	case !h.presence.Has(cmd.Target):
		h.drop(st.ID, cmd, "target not connected")
		return
	}
	h.sendLocked(cmd.Target, &Event{
		Kind:    EventSignal,
		Signal:  cmd.Signal,
		From:    st.ID,
		Name:    st.Name,
		Device:  st.Device,
		Payload: cmd.Payload,
	})
}

func (h *Hub) transmitLocked(st ClientState, cmd *Command, on bool) {
	if st.Channel == "" {
		h.drop(st.ID, cmd, "not in a channel")
		return
	}
	changed, err := h.presence.SetTransmitting(st.ID, on)
	if err != nil {
		h.drop(st.ID, cmd, err.Error())
		return
	}
	if !changed {
		return
	}

	ev := &Event{
		Kind:    EventTransmissionStarted,
		Channel: st.Channel,
		From:    st.ID,
		Name:    st.Name,
	}
	if !on {
		ev.Kind = EventTransmissionStopped
		ev.Reason = ReasonReleased
	}
	h.sendAllLocked(h.channels.MembersExcluding(st.Channel, st.ID), ev)
}

func (h *Hub) audioLocked(st ClientState, cmd *Command) {
	if st.Channel == "" || !st.Transmitting {
		h.drop(st.ID, cmd, "not transmitting")
		return
	}
	h.sendAllLocked(h.channels.MembersExcluding(st.Channel, st.ID), &Event{
		Kind:    EventAudioFrame,
		Channel: st.Channel,
		From:    st.ID,
		Name:    st.Name,
		Payload: cmd.Payload,
	})
}

func (h *Hub) presenceEventLocked() *Event {
	return &Event{Kind: EventPresence, Clients: h.presence.Snapshot()}
}

func (h *Hub) channelsEventLocked() *Event {
	return &Event{Kind: EventChannels, Channels: h.channels.List()}
}

func (h *Hub) entriesLocked(ids []ClientID) []PresenceEntry {
	out := make([]PresenceEntry, 0, len(ids))
	for _, id := range ids {
		if st, ok := h.presence.Get(id); ok {
			out = append(out, st.entry())
		}
	}
	return out
}

func (h *Hub) broadcastLocked(ev *Event) {
	h.sendAllLocked(h.presence.IDs(), ev)
}

func (h *Hub) sendAllLocked(ids []ClientID, ev *Event) {
	for _, id := range ids {
		h.sendLocked(id, ev)
	}
}

func (h *Hub) sendLocked(to ClientID, ev *Event) {
	if err := h.transport.Send(to, ev); err != nil {
		h.log.Debug().
			Err(err).
			Str("client_id", string(to)).
			Str("event", ev.Kind.String()).
			Msg("event not delivered")
	}
}

func (h *Hub) drop(id ClientID, cmd *Command, reason string) {
	h.log.Debug().
		Str("client_id", string(id)).
		Str("command", cmd.Kind.String()).
		Str("reason", reason).
		Msg("command dropped")
}

// Channels returns the channel list with live member counts.
func (h *Hub) Channels() []ChannelInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels.List()
}

// Channel returns one channel with its live member count.
func (h *Hub) Channel(id string) (ChannelInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels.Get(id)
}

// Presence returns the named clients in connect order.
func (h *Hub) Presence() []PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.Snapshot()
}

// Client returns a copy of the presence record of id.
func (h *Hub) Client(id ClientID) (ClientState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.Get(id)
}

// Stats is a point-in-time summary of the hub.
type Stats struct {
	StartedAt    time.Time
	Uptime       time.Duration
	Clients      int
	Named        int
	Transmitting int
	Channels     int
	MaxClients   int
	MaxClientsAt time.Time
}

// Stats reports connection counters and the connection high-water mark.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		StartedAt:    h.startedAt,
		Uptime:       time.Since(h.startedAt),
		Clients:      h.presence.Len(),
		Channels:     len(h.channels.order),
		MaxClients:   h.maxClients,
		MaxClientsAt: h.maxClientsAt,
	}
	for _, id := range h.presence.IDs() {
		st, _ := h.presence.Get(id)
		if st.Named() {
			s.Named++
		}
		if st.Transmitting {
			s.Transmitting++
		}
	}
	return s
}
