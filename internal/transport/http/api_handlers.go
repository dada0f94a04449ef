package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
)

// APIHandlers provides read-only HTTP handlers over the hub and the audit store.
type APIHandlers struct {
	hub   *core.Hub
	store store.SessionStore
	log   *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. st may be nil.
func NewAPIHandlers(hub *core.Hub, st store.SessionStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelsResponse lists channels with member counts.
type ChannelsResponse struct {
	Channels []proto.Channel `json:"channels"`
}

// PresenceResponse lists named clients.
type PresenceResponse struct {
	Clients []proto.Client `json:"clients"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	StartedAt     string `json:"started_at"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Clients       int    `json:"clients"`
	Named         int    `json:"named"`
	Transmitting  int    `json:"transmitting"`
	Channels      int    `json:"channels"`
	MaxClients    int    `json:"max_clients"`
	MaxClientsAt  string `json:"max_clients_at"`
}

// SessionResponse is one audit record.
type SessionResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Device          string `json:"device"`
	ConnectedAt     string `json:"connected_at"`
	DisconnectedAt  string `json:"disconnected_at"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// SessionsResponse lists audit records, newest first.
type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type sessionsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// Channels returns every channel with its live member count.
// GET /api/channels
func (h *APIHandlers) Channels(c *gin.Context) {
	c.JSON(http.StatusOK, ChannelsResponse{Channels: channelsToProto(h.hub.Channels())})
}

// Channel returns one channel.
// GET /api/channels/:id
func (h *APIHandlers) Channel(c *gin.Context) {
	ch, ok := h.hub.Channel(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	c.JSON(http.StatusOK, channelsToProto([]core.ChannelInfo{ch})[0])
}

// Presence returns the named clients in connect order.
// GET /api/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, PresenceResponse{Clients: clientsToProto(h.hub.Presence())})
}

// Stats returns hub counters.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	s := h.hub.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		StartedAt:     s.StartedAt.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(s.Uptime.Seconds()),
		Clients:       s.Clients,
		Named:         s.Named,
		Transmitting:  s.Transmitting,
		Channels:      s.Channels,
		MaxClients:    s.MaxClients,
		MaxClientsAt:  s.MaxClientsAt.UTC().Format(time.RFC3339),
	})
}

// Sessions lists finished connections.
// GET /api/sessions?limit=N
func (h *APIHandlers) Sessions(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session audit disabled"})
		return
	}

	var q sessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid sessions query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}

	sessions, err := h.store.ListSessions(c.Request.Context(), q.Limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := SessionsResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, sessionToResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// Session returns one finished connection.
// GET /api/sessions/:id
func (h *APIHandlers) Session(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session audit disabled"})
		return
	}

	s, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to get session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(*s))
}

func sessionToResponse(s store.Session) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		Name:            s.Name,
		Device:          s.Device,
		ConnectedAt:     s.ConnectedAt.UTC().Format(time.RFC3339),
		DisconnectedAt:  s.DisconnectedAt.UTC().Format(time.RFC3339),
		DurationSeconds: int64(s.Duration().Seconds()),
	}
}
