package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder is a Transport that keeps every delivered event per recipient.
type recorder struct {
	mu     sync.Mutex
	events map[ClientID][]*Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[ClientID][]*Event)}
}

func (r *recorder) Send(to ClientID, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[to] = append(r.events[to], ev)
	return nil
}

func (r *recorder) take(id ClientID) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events[id]
	delete(r.events, id)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[ClientID][]*Event)
}

func kinds(evs []*Event) []EventKind {
	out := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func sameKinds(a, b []EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// newSyncHub returns a hub driven directly through Connect/Handle/Disconnect.
func newSyncHub(t *testing.T, ids ...ClientID) (*Hub, *recorder) {
	t.Helper()

	rec := newRecorder()
	hub := NewHub(testChannels, WithTransport(rec))
	for _, id := range ids {
		if err := hub.Connect(id); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
		hub.Handle(id, &Command{Kind: CommandRegister, Name: "user-" + string(id), Device: DeviceAndroid})
	}
	rec.reset()
	return hub, rec
}

func TestHubTransmissionStartExcludesSender(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", "Alice")
	bob := connect(t, hub, "b", "Bob")
	join(t, hub, alice, "general")
	join(t, hub, bob, "general")
	drain(alice)
	drain(bob)

	alice.Commands <- &Command{Kind: CommandPTTStart}

	ev := mustEvent(t, bob.Events, EventTransmissionStarted)
	if ev.From != "a" || ev.Name != "Alice" || ev.Channel != "general" {
		t.Fatalf("unexpected transmission event: %+v", ev)
	}
	expectNoEvent(t, alice.Events, EventTransmissionStarted)
}

func TestHubChannelSwitchNotifiesOldChannel(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", "Alice")
	bob := connect(t, hub, "b", "Bob")
	join(t, hub, alice, "general")
	join(t, hub, bob, "general")
	drain(alice)
	drain(bob)

	alice.Commands <- &Command{Kind: CommandJoinChannel, Channel: "security"}

	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.From != "a" || left.Channel != "general" || left.Reason != ReasonSwitched {
		t.Fatalf("unexpected user_left: %+v", left)
	}
	list := mustEvent(t, bob.Events, EventChannels)
	if got := channelInfo(t, list.Channels, "general").Members; got != 1 {
		t.Fatalf("general members = %d, want 1", got)
	}
	if got := channelInfo(t, list.Channels, "security").Members; got != 1 {
		t.Fatalf("security members = %d, want 1", got)
	}

	joined := mustEvent(t, alice.Events, EventChannelJoined)
	if joined.Channel != "security" || len(joined.Clients) != 0 {
		t.Fatalf("unexpected channel_joined: %+v", joined)
	}

	hub.mu.RLock()
	inGeneral := isMember(hub.channels, "a", "general")
	inSecurity := isMember(hub.channels, "a", "security")
	hub.mu.RUnlock()
	if inGeneral || !inSecurity {
		t.Fatalf("membership general=%v security=%v", inGeneral, inSecurity)
	}
}

func TestHubDisconnectWhileTransmitting(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", "Alice")
	bob := connect(t, hub, "b", "Bob")
	join(t, hub, alice, "general")
	join(t, hub, bob, "general")
	alice.Commands <- &Command{Kind: CommandPTTStart}
	mustEvent(t, bob.Events, EventTransmissionStarted)

	hub.UnregisterClient(alice)

	stop := mustEvent(t, bob.Events, EventTransmissionStopped)
	if stop.From != "a" || stop.Reason != ReasonDisconnected {
		t.Fatalf("unexpected transmission_stopped: %+v", stop)
	}
	mustEvent(t, bob.Events, EventUserLeft)
	presence := mustEvent(t, bob.Events, EventPresence)
	for _, p := range presence.Clients {
		if p.ID == "a" {
			t.Fatalf("presence still lists disconnected client: %+v", presence.Clients)
		}
	}

	// The mailbox is closed, so draining terminates.
	for range alice.Events {
	}
	if _, ok := hub.Client("a"); ok {
		t.Fatal("disconnected client still has a presence record")
	}
}

func TestHubDisconnectEventOrder(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("a", &Command{Kind: CommandPTTStart})
	rec.reset()

	if err := hub.Disconnect("a"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	want := []EventKind{EventTransmissionStopped, EventUserLeft, EventPresence, EventChannels}
	if got := kinds(rec.take("b")); !sameKinds(got, want) {
		t.Fatalf("events to b = %v, want %v", got, want)
	}
	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("disconnected client received %v", kinds(got))
	}

	if err := hub.Disconnect("a"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("second disconnect err = %v, want ErrClientNotFound", err)
	}
}

func TestHubRegisterBroadcastsPresence(t *testing.T) {
	hub, rec := newSyncHub(t, "a")
	if err := hub.Connect("b"); err != nil {
		t.Fatal(err)
	}

	// An unnamed client is not part of the roster.
	if got := hub.Presence(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("presence = %+v", got)
	}

	hub.Handle("b", &Command{Kind: CommandRegister, Name: "Bob", Device: DeviceInricoT320})

	for _, id := range []ClientID{"a", "b"} {
		evs := rec.take(id)
		if len(evs) != 1 || evs[0].Kind != EventPresence {
			t.Fatalf("events to %s = %v", id, kinds(evs))
		}
		if len(evs[0].Clients) != 2 {
			t.Fatalf("presence to %s = %+v", id, evs[0].Clients)
		}
		bob := evs[0].Clients[1]
		if bob.ID != "b" || bob.Name != "Bob" || bob.Device != DeviceInricoT320 {
			t.Fatalf("unexpected entry %+v", bob)
		}
	}
}

func TestHubJoinNotifiesMembers(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b", "c")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("c", &Command{Kind: CommandJoinChannel, Channel: "technical"})
	rec.reset()

	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})

	if got, want := kinds(rec.take("a")), []EventKind{EventUserJoined, EventChannels}; !sameKinds(got, want) {
		t.Fatalf("events to a = %v, want %v", got, want)
	}
	bEvents := rec.take("b")
	if got, want := kinds(bEvents), []EventKind{EventChannelJoined, EventChannels}; !sameKinds(got, want) {
		t.Fatalf("events to b = %v, want %v", got, want)
	}
	if members := bEvents[0].Clients; len(members) != 1 || members[0].ID != "a" {
		t.Fatalf("channel_joined members = %+v", members)
	}
	if got, want := kinds(rec.take("c")), []EventKind{EventChannels}; !sameKinds(got, want) {
		t.Fatalf("events to c = %v, want %v", got, want)
	}
}

func TestHubRejoinSameChannelIsSilent(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	rec.reset()

	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})

	if got := rec.take("b"); len(got) != 0 {
		t.Fatalf("rejoin produced %v", kinds(got))
	}
	if got := channelInfo(t, hub.Channels(), "general").Members; got != 2 {
		t.Fatalf("general members = %d, want 2", got)
	}
}

func TestHubJoinUnknownChannelIsIgnored(t *testing.T) {
	hub, rec := newSyncHub(t, "a")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	rec.reset()

	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "ghost"})

	st, _ := hub.Client("a")
	if st.Channel != "general" {
		t.Fatalf("channel = %q, want general", st.Channel)
	}
	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("unexpected events %v", kinds(got))
	}
}

func TestHubLeaveChannel(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	rec.reset()

	hub.Handle("a", &Command{Kind: CommandLeaveChannel})

	evs := rec.take("b")
	if got, want := kinds(evs), []EventKind{EventUserLeft, EventChannels}; !sameKinds(got, want) {
		t.Fatalf("events to b = %v, want %v", got, want)
	}
	if evs[0].Reason != ReasonLeft {
		t.Fatalf("reason = %q, want %q", evs[0].Reason, ReasonLeft)
	}
	if st, _ := hub.Client("a"); st.Channel != "" {
		t.Fatalf("client still in %q", st.Channel)
	}

	// Leaving again is a no-op.
	rec.reset()
	hub.Handle("a", &Command{Kind: CommandLeaveChannel})
	if got := rec.take("b"); len(got) != 0 {
		t.Fatalf("second leave produced %v", kinds(got))
	}
}

func TestHubSwitchWhileTransmittingStopsFirst(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("a", &Command{Kind: CommandPTTStart})
	rec.reset()

	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "security"})

	evs := rec.take("b")
	if got, want := kinds(evs), []EventKind{EventTransmissionStopped, EventUserLeft, EventChannels}; !sameKinds(got, want) {
		t.Fatalf("events to b = %v, want %v", got, want)
	}
	if evs[0].Reason != ReasonSwitched {
		t.Fatalf("stop reason = %q", evs[0].Reason)
	}
	if st, _ := hub.Client("a"); st.Transmitting {
		t.Fatal("transmitting flag survived the channel switch")
	}
}

func TestHubPTTRequiresChannel(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")

	hub.Handle("a", &Command{Kind: CommandPTTStart})

	if st, _ := hub.Client("a"); st.Transmitting {
		t.Fatal("transmitting outside a channel")
	}
	if got := rec.take("b"); len(got) != 0 {
		t.Fatalf("unexpected events %v", kinds(got))
	}
}

func TestHubPTTIsEdgeTriggered(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	rec.reset()

	hub.Handle("a", &Command{Kind: CommandPTTStart})
	hub.Handle("a", &Command{Kind: CommandPTTStart})
	hub.Handle("a", &Command{Kind: CommandPTTStop})
	hub.Handle("a", &Command{Kind: CommandPTTStop})

	evs := rec.take("b")
	if got, want := kinds(evs), []EventKind{EventTransmissionStarted, EventTransmissionStopped}; !sameKinds(got, want) {
		t.Fatalf("events to b = %v, want %v", got, want)
	}
	if evs[1].Reason != ReasonReleased {
		t.Fatalf("stop reason = %q", evs[1].Reason)
	}
	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("sender received %v", kinds(got))
	}
}

func TestHubSignalRelaysPayloadUnchanged(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b", "c")

	payload := []byte(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n","extra":[1,2,{"k":null}]}`)
	for _, kind := range []SignalKind{SignalOffer, SignalAnswer, SignalICECandidate} {
		hub.Handle("a", &Command{Kind: CommandSignal, Signal: kind, Target: "b", Payload: payload})

		evs := rec.take("b")
		if len(evs) != 1 {
			t.Fatalf("%s: target received %d events", kind, len(evs))
		}
		ev := evs[0]
		if ev.Kind != EventSignal || ev.Signal != kind || ev.From != "a" || ev.Name != "user-a" {
			t.Fatalf("%s: unexpected event %+v", kind, ev)
		}
		if !bytes.Equal(ev.Payload, payload) {
			t.Fatalf("%s: payload changed: %s", kind, ev.Payload)
		}
	}
	if got := rec.take("c"); len(got) != 0 {
		t.Fatalf("bystander received %v", kinds(got))
	}
	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("sender received %v", kinds(got))
	}
}

func TestHubSignalDroppedForBadTargets(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b")

	cases := []*Command{
		{Kind: CommandSignal, Signal: SignalOffer, Target: "ghost", Payload: []byte(`{}`)},
		{Kind: CommandSignal, Signal: SignalOffer, Target: "", Payload: []byte(`{}`)},
		{Kind: CommandSignal, Signal: SignalOffer, Target: "a", Payload: []byte(`{}`)},
		{Kind: CommandSignal, Signal: SignalKind("bye"), Target: "b", Payload: []byte(`{}`)},
	}
	for i, cmd := range cases {
		hub.Handle("a", cmd)
		for _, id := range []ClientID{"a", "b"} {
			if got := rec.take(id); len(got) != 0 {
				t.Fatalf("case %d: %s received %v", i, id, kinds(got))
			}
		}
	}
}

func TestHubAudioRelayRequiresTransmission(t *testing.T) {
	hub, rec := newSyncHub(t, "a", "b", "c")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("c", &Command{Kind: CommandJoinChannel, Channel: "security"})
	rec.reset()

	frame := []byte(`"AAECAwQ="`)
	hub.Handle("a", &Command{Kind: CommandAudioFrame, Payload: frame})
	if got := rec.take("b"); len(got) != 0 {
		t.Fatalf("frame relayed without ptt: %v", kinds(got))
	}

	hub.Handle("a", &Command{Kind: CommandPTTStart})
	rec.reset()
	hub.Handle("a", &Command{Kind: CommandAudioFrame, Payload: frame})

	evs := rec.take("b")
	if len(evs) != 1 || evs[0].Kind != EventAudioFrame {
		t.Fatalf("events to b = %v", kinds(evs))
	}
	if evs[0].From != "a" || evs[0].Channel != "general" || !bytes.Equal(evs[0].Payload, frame) {
		t.Fatalf("unexpected frame %+v", evs[0])
	}
	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("speaker heard itself: %v", kinds(got))
	}
	if got := rec.take("c"); len(got) != 0 {
		t.Fatalf("other channel received %v", kinds(got))
	}
}

func TestHubCommandsFromUnknownClientAreDropped(t *testing.T) {
	hub, rec := newSyncHub(t, "a")

	hub.Handle("ghost", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("ghost", &Command{Kind: CommandRegister, Name: "Ghost"})
	hub.Handle("a", nil)

	if got := rec.take("a"); len(got) != 0 {
		t.Fatalf("unexpected events %v", kinds(got))
	}
	if got := channelInfo(t, hub.Channels(), "general").Members; got != 0 {
		t.Fatalf("general members = %d", got)
	}
}

func TestHubConnectTwiceFails(t *testing.T) {
	hub := NewHub(testChannels)
	if err := hub.Connect("a"); err != nil {
		t.Fatal(err)
	}
	if err := hub.Connect("a"); !errors.Is(err, ErrClientExists) {
		t.Fatalf("err = %v, want ErrClientExists", err)
	}
}

func TestHubStatsTracksHighWaterMark(t *testing.T) {
	hub, _ := newSyncHub(t, "a", "b", "c")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "general"})
	hub.Handle("a", &Command{Kind: CommandPTTStart})
	_ = hub.Connect("d")
	_ = hub.Disconnect("b")

	s := hub.Stats()
	if s.Clients != 3 || s.Named != 2 || s.Transmitting != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.MaxClients != 4 {
		t.Fatalf("max clients = %d, want 4", s.MaxClients)
	}
	if s.Channels != len(testChannels) {
		t.Fatalf("channels = %d", s.Channels)
	}
}

func TestHubChannelLookup(t *testing.T) {
	hub, _ := newSyncHub(t, "a", "b")
	hub.Handle("a", &Command{Kind: CommandJoinChannel, Channel: "security"})
	hub.Handle("b", &Command{Kind: CommandJoinChannel, Channel: "security"})

	info, ok := hub.Channel("security")
	if !ok || info.ID != "security" || info.Members != 2 {
		t.Fatalf("security = %+v, %v", info, ok)
	}
	if _, ok := hub.Channel("ghost"); ok {
		t.Fatal("unknown channel reported as present")
	}
}

func TestHubRegisterAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(testChannels)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient("late", 0)
	if err := hub.RegisterClient(c); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("err = %v, want ErrHubClosed", err)
	}
	if _, ok := <-c.Events; ok {
		t.Fatal("events channel left open")
	}
	if _, ok := hub.Client("late"); ok {
		t.Fatal("late client kept a presence record")
	}
}

func TestHubConcurrentMembershipStaysConsistent(t *testing.T) {
	hub := NewHub(testChannels)
	channels := []string{"general", "security", "technical"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ClientID(fmt.Sprintf("c%02d", i))
			if err := hub.Connect(id); err != nil {
				t.Errorf("connect %s: %v", id, err)
				return
			}
			hub.Handle(id, &Command{Kind: CommandRegister, Name: string(id)})
			for j := 0; j < 20; j++ {
				hub.Handle(id, &Command{Kind: CommandJoinChannel, Channel: channels[(i+j)%len(channels)]})
				hub.Handle(id, &Command{Kind: CommandPTTStart})
				hub.Handle(id, &Command{Kind: CommandAudioFrame, Payload: []byte(`"x"`)})
				hub.Handle(id, &Command{Kind: CommandPTTStop})
			}
			if i%2 == 0 {
				_ = hub.Disconnect(id)
			}
		}(i)
	}
	wg.Wait()

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if got := hub.presence.Len(); got != 16 {
		t.Fatalf("clients = %d, want 16", got)
	}
	total := 0
	for _, ch := range hub.channels.List() {
		total += ch.Members
	}
	if total != 16 {
		t.Fatalf("members across channels = %d, want 16", total)
	}
	for _, id := range hub.presence.IDs() {
		st, _ := hub.presence.Get(id)
		if !isMember(hub.channels, id, st.Channel) {
			t.Fatalf("%s recorded in %q but not a member", id, st.Channel)
		}
		if st.Transmitting {
			t.Fatalf("%s still transmitting", id)
		}
	}
}

func TestHubDeliveryFailureDoesNotBlock(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", "Alice")
	bob := NewClient("b", 1)
	if err := hub.RegisterClient(bob); err != nil {
		t.Fatal(err)
	}
	bob.Commands <- &Command{Kind: CommandRegister, Name: "Bob"}
	bob.Commands <- &Command{Kind: CommandJoinChannel, Channel: "general"}
	join(t, hub, alice, "general")
	alice.Commands <- &Command{Kind: CommandPTTStart}

	// Bob never reads; his one-slot mailbox overflows while Alice keeps talking.
	for i := 0; i < 10; i++ {
		alice.Commands <- &Command{Kind: CommandAudioFrame, Payload: []byte(`"x"`)}
	}
	alice.Commands <- &Command{Kind: CommandPTTStop}

	waitFor(t, func() bool {
		st, _ := hub.Client("a")
		return !st.Transmitting
	})
	done := make(chan struct{})
	go func() {
		hub.Stats()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub blocked on a slow recipient")
	}
}
