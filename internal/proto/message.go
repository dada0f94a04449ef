package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeRegister     = "register"
	InboundTypeJoin         = "join"
	InboundTypeLeave        = "leave"
	InboundTypeOffer        = "offer"
	InboundTypeAnswer       = "answer"
	InboundTypeICECandidate = "ice-candidate"
	InboundTypePTTStart     = "ptt-start"
	InboundTypePTTStop      = "ptt-stop"
	InboundTypeAudioFrame   = "audio-frame"
	InboundTypePing         = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventWelcome             = "welcome"
	EventPresence            = "presence"
	EventChannels            = "channels"
	EventChannelJoined       = "channel_joined"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventTransmissionStarted = "transmission_started"
	EventTransmissionStopped = "transmission_stopped"
	EventAudioFrame          = "audio_frame"
	EventPong                = "pong"
)

// RegisterData is sent by the client to introduce itself.
type RegisterData struct {
	Name     string `json:"name"`
	Device   string `json:"device,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join a specific channel.
type JoinData struct {
	Channel string `json:"channel"`
}

// SignalData wraps an offer, answer or ICE candidate for one peer.
// Payload is relayed without being parsed.
type SignalData struct {
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// AudioFrameData carries one encoded audio frame.
type AudioFrameData struct {
	Payload json.RawMessage `json:"payload"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Client is the public view of a named connection.
type Client struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Device string `json:"device"`
}

// Channel is the public view of a channel.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Members     int    `json:"members"`
}

// EventWelcomeData tells a fresh connection who it is.
type EventWelcomeData struct {
	ClientID string    `json:"client_id"`
	Protocol int       `json:"protocol"`
	Channels []Channel `json:"channels"`
}

// EventPresenceData lists every named client.
type EventPresenceData struct {
	Clients []Client `json:"clients"`
}

// EventChannelsData lists channels with live member counts.
type EventChannelsData struct {
	Channels []Channel `json:"channels"`
}

// EventChannelJoinedData confirms a join and lists the other members.
type EventChannelJoinedData struct {
	Channel string   `json:"channel"`
	Members []Client `json:"members"`
}

// EventMemberData is used by user_joined, user_left and both transmission events.
type EventMemberData struct {
	Channel  string `json:"channel"`
	ClientID string `json:"client_id"`
	Name     string `json:"name,omitempty"`
	Device   string `json:"device,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// EventSignalData is an offer, answer or ICE candidate delivered to its target.
type EventSignalData struct {
	From    string          `json:"from"`
	Name    string          `json:"name,omitempty"`
	Device  string          `json:"device,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// EventAudioFrameData is one relayed audio frame.
type EventAudioFrameData struct {
	Channel string          `json:"channel"`
	From    string          `json:"from"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
