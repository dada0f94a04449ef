package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/config"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub   *core.Hub
	store store.SessionStore
	cfg   *config.Config
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. st may be nil.
func NewWSHandler(hub *core.Hub, st store.SessionStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, store: st, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(core.ClientID(utils.NewID()), h.cfg.SendBuffer)
	connectedAt := time.Now()
	if err := h.hub.RegisterClient(client); err != nil {
		h.log.Warn().Err(err).Msg("register client")
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer h.finish(client, connectedAt)

	logger := h.log.With().Str("client_id", string(client.ID)).Logger()
	logger.Debug().Str("remote", r.RemoteAddr).Msg("ws connected")

	// The welcome goes out before the write loop starts draining the mailbox.
	if err := writeJSON(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventWelcome,
		Data: proto.EventWelcomeData{
			ClientID: string(client.ID),
			Protocol: proto.ProtocolVersion,
			Channels: channelsToProto(h.hub.Channels()),
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("write welcome")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()
	running := 2
	if h.cfg.PingInterval > 0 {
		running++
		go func() {
			errCh <- h.pingLoop(ctx, conn)
		}()
	}

	err = <-errCh
	cancel() // stop the other goroutines
	for i := 1; i < running; i++ {
		<-errCh
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// finish runs the disconnect cleanup and records the session.
func (h *WSHandler) finish(client *core.Client, connectedAt time.Time) {
	state, _ := h.hub.Client(client.ID)
	h.hub.UnregisterClient(client)

	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := h.store.RecordSession(ctx, store.Session{
		ID:             string(client.ID),
		Name:           state.Name,
		Device:         string(state.Device),
		ConnectedAt:    connectedAt,
		DisconnectedAt: time.Now(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("client_id", string(client.ID)).Msg("record session")
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimit, time.Minute)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			logger.Debug().Err(err).Msg("malformed inbound")
			if err := writeJSON(ctx, conn, errorOutbound(core.ErrCodeInvalidMessage, "malformed message")); err != nil {
				return err
			}
			continue
		}

		if inbound.Type == proto.InboundTypePing {
			if err := writeJSON(ctx, conn, proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventPong}); err != nil {
				return err
			}
			continue
		}
		if inbound.Type != proto.InboundTypeAudioFrame && !limiter.allow() {
			logger.Debug().Str("type", inbound.Type).Msg("rate limited")
			if err := writeJSON(ctx, conn, errorOutbound(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			logger.Debug().Err(err).Str("type", inbound.Type).Msg("failed to map inbound")
			protoErr = &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed data"}
		}
		if protoErr != nil {
			if err := writeJSON(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := writeJSON(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeJSON encodes v without HTML escaping so relayed payloads keep their
// characters.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
