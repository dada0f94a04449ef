package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/config"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	cfg   *config.Config
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + WSPath
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	channels := make([]core.ChannelSpec, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, core.ChannelSpec{ID: ch.ID, Name: ch.Name, Description: ch.Description})
	}
	hub := core.NewHub(channels)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	st := createTestStore(t)
	logger := zerolog.Nop()
	server := NewServer(hub, st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, cfg: &cfg}
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var _ store.SessionStore = (*sqlite.SQLiteStore)(nil)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

// dial connects, consumes the welcome and returns the assigned id.
func dial(t *testing.T, ctx context.Context, env *testEnv) *wsClient {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	c := &wsClient{t: t, conn: conn}
	var welcome proto.EventWelcomeData
	c.expect(ctx, proto.EventWelcome, &welcome)
	if welcome.ClientID == "" || welcome.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	c.id = welcome.ClientID
	return c
}

func (c *wsClient) send(ctx context.Context, typ string, data any) {
	c.t.Helper()

	var raw json.RawMessage
	if data != nil {
		b, err := encodeNoEscape(data)
		if err != nil {
			c.t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = b
	}
	frame, err := encodeNoEscape(proto.Inbound{Type: typ, Data: raw})
	if err != nil {
		c.t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

// encodeNoEscape keeps <, > and & literal so relayed payloads can be
// compared byte for byte.
func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func (c *wsClient) read(ctx context.Context) rawOutbound {
	c.t.Helper()

	var out rawOutbound
	if err := wsjson.Read(ctx, c.conn, &out); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return out
}

// expect skips frames until the named event arrives and decodes its data into v.
func (c *wsClient) expect(ctx context.Context, event string, v any) rawOutbound {
	c.t.Helper()

	for {
		out := c.read(ctx)
		if out.Type != proto.OutboundTypeEvent || out.Event != event {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(out.Data, v); err != nil {
				c.t.Fatalf("decode %s: %v", event, err)
			}
		}
		return out
	}
}

// expectError skips frames until an error frame arrives.
func (c *wsClient) expectError(ctx context.Context) *proto.Error {
	c.t.Helper()

	for {
		out := c.read(ctx)
		if out.Type == proto.OutboundTypeError {
			if out.Error == nil {
				c.t.Fatal("error frame without error body")
			}
			return out.Error
		}
	}
}

// register sends register and waits until the hub has applied it.
func (c *wsClient) register(ctx context.Context, env *testEnv, name, device string) {
	c.t.Helper()

	c.send(ctx, proto.InboundTypeRegister, proto.RegisterData{Name: name, Device: device})
	waitFor(c.t, func() bool {
		st, ok := env.hub.Client(core.ClientID(c.id))
		return ok && st.Name == name
	})
}

func (c *wsClient) join(ctx context.Context, env *testEnv, channel string) {
	c.t.Helper()

	c.send(ctx, proto.InboundTypeJoin, proto.JoinData{Channel: channel})
	waitFor(c.t, func() bool {
		st, ok := env.hub.Client(core.ClientID(c.id))
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
