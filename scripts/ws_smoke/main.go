package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
)

// received mirrors proto.Outbound with Data left undecoded.
type received struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

type peer struct {
	name string
	id   string
	conn *websocket.Conn
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	channel := flag.String("channel", "general", "channel to join")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	alice, err := connect(ctx, *addr, "smoke-alice", *channel)
	if err != nil {
		return err
	}
	defer alice.conn.Close(websocket.StatusNormalClosure, "bye")

	bob, err := connect(ctx, *addr, "smoke-bob", *channel)
	if err != nil {
		return err
	}
	defer bob.conn.Close(websocket.StatusNormalClosure, "bye")

	if _, err := waitEvent(ctx, alice, proto.EventUserJoined); err != nil {
		return err
	}

	if err := send(ctx, alice, proto.InboundTypePTTStart, struct{}{}); err != nil {
		return err
	}
	if _, err := waitEvent(ctx, bob, proto.EventTransmissionStarted); err != nil {
		return err
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0 smoke"}`)
	if err := send(ctx, alice, proto.InboundTypeOffer, proto.SignalData{Target: bob.id, Payload: offer}); err != nil {
		return err
	}
	data, err := waitEvent(ctx, bob, proto.InboundTypeOffer)
	if err != nil {
		return err
	}
	var signal proto.EventSignalData
	if err := json.Unmarshal(data, &signal); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if signal.From != alice.id || string(signal.Payload) != string(offer) {
		return fmt.Errorf("offer mismatch: from=%s payload=%s", signal.From, signal.Payload)
	}

	if err := send(ctx, alice, proto.InboundTypePTTStop, struct{}{}); err != nil {
		return err
	}
	if _, err := waitEvent(ctx, bob, proto.EventTransmissionStopped); err != nil {
		return err
	}

	fmt.Println("smoke test passed")
	return nil
}

func connect(ctx context.Context, addr, name, channel string) (*peer, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	p := &peer{name: name, conn: conn}

	data, err := waitEvent(ctx, p, proto.EventWelcome)
	if err != nil {
		return nil, err
	}
	var welcome proto.EventWelcomeData
	if err := json.Unmarshal(data, &welcome); err != nil {
		return nil, fmt.Errorf("decode welcome: %w", err)
	}
	p.id = welcome.ClientID

	if err := send(ctx, p, proto.InboundTypeRegister, proto.RegisterData{Name: name, Device: "web", Protocol: proto.ProtocolVersion}); err != nil {
		return nil, err
	}
	if err := send(ctx, p, proto.InboundTypeJoin, proto.JoinData{Channel: channel}); err != nil {
		return nil, err
	}
	if _, err := waitEvent(ctx, p, proto.EventChannelJoined); err != nil {
		return nil, err
	}
	fmt.Printf("%s connected as %s\n", name, p.id)
	return p, nil
}

func send(ctx context.Context, p *peer, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, p.conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("%s: send %s: %w", p.name, typ, err)
	}
	return nil
}

func waitEvent(ctx context.Context, p *peer, event string) (json.RawMessage, error) {
	for {
		var msg received
		if err := wsjson.Read(ctx, p.conn, &msg); err != nil {
			return nil, fmt.Errorf("%s: waiting for %s: %w", p.name, event, err)
		}
		if msg.Type == proto.OutboundTypeError && msg.Error != nil {
			return nil, fmt.Errorf("%s: server error %s: %s", p.name, msg.Error.Code, msg.Error.Msg)
		}
		fmt.Printf("%s <- %s\n", p.name, msg.Event)
		if msg.Event == event {
			return msg.Data, nil
		}
	}
}
