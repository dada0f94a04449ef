package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/discovery"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
)

type received struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_talk: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "", "WebSocket address (discovered on the LAN when empty)")
	name := flag.String("name", "cli-user", "display name")
	device := flag.String("device", "web", "device class: android or web")
	channel := flag.String("channel", "general", "channel to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr
	if target == "" {
		url, err := discover(ctx)
		if err != nil {
			return err
		}
		target = url
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw})
	}

	if err := send(proto.InboundTypeRegister, proto.RegisterData{Name: *name, Device: *device, Protocol: proto.ProtocolVersion}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if *channel != "" {
		if err := send(proto.InboundTypeJoin, proto.JoinData{Channel: *channel}); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	}

	fmt.Printf("Connected to %s as %s\n", target, *name)
	fmt.Println("Commands: /join <channel>, /leave, /talk, /over, /quit")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	inputLoop(ctx, send)

	stop()
	cancel()
	return nil
}

func discover(ctx context.Context) (string, error) {
	resolver, err := discovery.NewResolver(nil, "", "")
	if err != nil {
		return "", err
	}
	bctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	relays, err := resolver.Browse(bctx)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	if len(relays) == 0 {
		return "", errors.New("no relay found on the local network, pass -addr")
	}
	fmt.Printf("Found relay %s\n", relays[0].Instance)
	return relays[0].URL(), nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg received
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		if msg.Type == proto.OutboundTypeError && msg.Error != nil {
			fmt.Printf("error %s: %s\n", msg.Error.Code, msg.Error.Msg)
			continue
		}
		printEvent(msg)
	}
}

func printEvent(msg received) {
	switch msg.Event {
	case proto.EventWelcome:
		var evt proto.EventWelcomeData
		if json.Unmarshal(msg.Data, &evt) == nil {
			fmt.Printf("welcome, you are %s\n", evt.ClientID)
		}
	case proto.EventPresence:
		var evt proto.EventPresenceData
		if json.Unmarshal(msg.Data, &evt) == nil {
			names := make([]string, 0, len(evt.Clients))
			for _, c := range evt.Clients {
				names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Device))
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		}
	case proto.EventChannelJoined:
		var evt proto.EventChannelJoinedData
		if json.Unmarshal(msg.Data, &evt) == nil {
			fmt.Printf("[%s] joined with %d others\n", evt.Channel, len(evt.Members))
		}
	case proto.EventUserJoined, proto.EventUserLeft, proto.EventTransmissionStarted, proto.EventTransmissionStopped:
		var evt proto.EventMemberData
		if json.Unmarshal(msg.Data, &evt) == nil {
			line := fmt.Sprintf("[%s] %s %s", evt.Channel, evt.Name, strings.ReplaceAll(msg.Event, "_", " "))
			if evt.Reason != "" {
				line += " (" + evt.Reason + ")"
			}
			fmt.Println(line)
		}
	case proto.EventChannels, proto.EventAudioFrame, proto.EventPong:
	default:
		fmt.Printf("event=%s data=%s\n", msg.Event, msg.Data)
	}
}

func inputLoop(ctx context.Context, send func(string, any) error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
			var err error
			switch cmd {
			case "":
				continue
			case "/join":
				err = send(proto.InboundTypeJoin, proto.JoinData{Channel: strings.TrimSpace(arg)})
			case "/leave":
				err = send(proto.InboundTypeLeave, struct{}{})
			case "/talk":
				err = send(proto.InboundTypePTTStart, struct{}{})
			case "/over":
				err = send(proto.InboundTypePTTStop, struct{}{})
			case "/quit":
				return
			default:
				fmt.Println("unknown command")
				continue
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
