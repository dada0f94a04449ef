package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence delivers the list of named clients.
	EventPresence EventKind = iota
	// EventChannels delivers the channel list with live member counts.
	EventChannels
	// EventChannelJoined confirms a join to the joiner with the other members.
	EventChannelJoined
	// EventUserJoined notifies channel members about a client joining.
	EventUserJoined
	// EventUserLeft notifies channel members about a client leaving.
	EventUserLeft
	// EventSignal carries an offer/answer/ICE envelope to its target.
	EventSignal
	// EventTransmissionStarted notifies channel members that a client started talking.
	EventTransmissionStarted
	// EventTransmissionStopped notifies channel members that a client stopped talking.
	EventTransmissionStopped
	// EventAudioFrame carries one audio frame from the current speaker.
	EventAudioFrame
)

func (k EventKind) String() string {
	switch k {
	case EventPresence:
		return "presence"
	case EventChannels:
		return "channels"
	case EventChannelJoined:
		return "channel_joined"
	case EventUserJoined:
		return "user_joined"
	case EventUserLeft:
		return "user_left"
	case EventSignal:
		return "signal"
	case EventTransmissionStarted:
		return "transmission_started"
	case EventTransmissionStopped:
		return "transmission_stopped"
	case EventAudioFrame:
		return "audio_frame"
	default:
		return "unknown"
	}
}

// Reasons attached to user_left and transmission_stopped.
const (
	ReasonLeft         = "left"
	ReasonSwitched     = "switched"
	ReasonDisconnected = "disconnected"
	ReasonReleased     = "released"
)

// Event is sent to clients to describe what happened in the system.
// An Event may be shared by several recipients and must not be mutated after
// it has been handed to a Transport.
type Event struct {
	Kind     EventKind
	Channel  string
	From     ClientID
	Name     string
	Device   DeviceClass
	Signal   SignalKind
	Payload  []byte
	Reason   string
	Clients  []PresenceEntry // presence snapshot or channel members
	Channels []ChannelInfo
}
