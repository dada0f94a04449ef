package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister sets the client's display name and device class.
	CommandRegister CommandKind = iota
	// CommandJoinChannel moves the client into a channel.
	CommandJoinChannel
	// CommandLeaveChannel removes the client from its current channel.
	CommandLeaveChannel
	// CommandSignal forwards a call-setup envelope to one target client.
	CommandSignal
	// CommandPTTStart marks the client as transmitting.
	CommandPTTStart
	// CommandPTTStop clears the transmitting flag.
	CommandPTTStop
	// CommandAudioFrame relays one audio frame to the rest of the channel.
	CommandAudioFrame
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegister:
		return "register"
	case CommandJoinChannel:
		return "join"
	case CommandLeaveChannel:
		return "leave"
	case CommandSignal:
		return "signal"
	case CommandPTTStart:
		return "ptt-start"
	case CommandPTTStop:
		return "ptt-stop"
	case CommandAudioFrame:
		return "audio-frame"
	default:
		return "unknown"
	}
}

// SignalKind names the call-setup envelope being relayed.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// Valid reports whether k is one of the relayed signal kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// Command represents an action requested by a client.
// Payload is opaque and never inspected.
type Command struct {
	Kind    CommandKind
	Name    string
	Device  DeviceClass
	Channel string
	Signal  SignalKind
	Target  ClientID
	Payload []byte
}
