package core

import (
	"context"
	"testing"
	"time"
)

var testChannels = []ChannelSpec{
	{ID: "general", Name: "General"},
	{ID: "security", Name: "Security"},
	{ID: "technical", Name: "Technical"},
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// expectNoEvent drains ch for a short while and fails if kind shows up.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(testChannels)
	go hub.Run(ctx)
	return hub
}

// connect registers a client and waits until its display name is visible.
func connect(t *testing.T, hub *Hub, id ClientID, name string) *Client {
	t.Helper()

	c := NewClient(id, 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	c.Commands <- &Command{Kind: CommandRegister, Name: name, Device: DeviceWeb}
	waitFor(t, func() bool {
		st, ok := hub.Client(id)
		return ok && st.Name == name
	})
	return c
}

func join(t *testing.T, hub *Hub, c *Client, channel string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinChannel, Channel: channel}
	waitFor(t, func() bool {
		st, ok := hub.Client(c.ID)
		return ok && st.Channel == channel
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// drain discards everything currently queued for c.
func drain(c *Client) {
	for {
		select {
		case <-c.Events:
		default:
			return
		}
	}
}

func channelInfo(t *testing.T, list []ChannelInfo, id string) ChannelInfo {
	t.Helper()
	for _, ch := range list {
		if ch.ID == id {
			return ch
		}
	}
	t.Fatalf("channel %q not in list %+v", id, list)
	return ChannelInfo{}
}

func isMember(c *Channels, id ClientID, channel string) bool {
	ch, ok := c.byID[channel]
	if !ok {
		return false
	}
	_, member := ch.members[id]
	return member
}
