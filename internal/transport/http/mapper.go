package http

import (
	"encoding/json"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeRegister:
		var reg proto.RegisterData
		if err := decodeData(inbound.Data, &reg); err != nil {
			return nil, nil, err
		}
		if reg.Protocol != 0 && reg.Protocol != proto.ProtocolVersion {
			return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}, nil
		}
		if reg.Name == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "name is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandRegister,
			Name:   reg.Name,
			Device: core.ParseDeviceClass(reg.Device),
		}, nil, nil
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := decodeData(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.Channel == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandJoinChannel,
			Channel: join.Channel,
		}, nil, nil
	case proto.InboundTypeLeave:
		return &core.Command{Kind: core.CommandLeaveChannel}, nil, nil
	case proto.InboundTypeOffer, proto.InboundTypeAnswer, proto.InboundTypeICECandidate:
		var sig proto.SignalData
		if err := decodeData(inbound.Data, &sig); err != nil {
			return nil, nil, err
		}
		if sig.Target == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "target is required"}, nil
		}
		if len(sig.Payload) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "payload is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSignal,
			Signal:  core.SignalKind(inbound.Type),
			Target:  core.ClientID(sig.Target),
			Payload: sig.Payload,
		}, nil, nil
	case proto.InboundTypePTTStart:
		return &core.Command{Kind: core.CommandPTTStart}, nil, nil
	case proto.InboundTypePTTStop:
		return &core.Command{Kind: core.CommandPTTStop}, nil, nil
	case proto.InboundTypeAudioFrame:
		var frame proto.AudioFrameData
		if err := decodeData(inbound.Data, &frame); err != nil {
			return nil, nil, err
		}
		if len(frame.Payload) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "payload is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandAudioFrame,
			Payload: frame.Payload,
		}, nil, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

// decodeData treats a missing data object as empty.
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresence,
			Data:  proto.EventPresenceData{Clients: clientsToProto(event.Clients)},
		}
	case core.EventChannels:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChannels,
			Data:  proto.EventChannelsData{Channels: channelsToProto(event.Channels)},
		}
	case core.EventChannelJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChannelJoined,
			Data: proto.EventChannelJoinedData{
				Channel: event.Channel,
				Members: clientsToProto(event.Clients),
			},
		}
	case core.EventUserJoined, core.EventUserLeft, core.EventTransmissionStarted, core.EventTransmissionStopped:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMemberData{
				Channel:  event.Channel,
				ClientID: string(event.From),
				Name:     event.Name,
				Device:   string(event.Device),
				Reason:   event.Reason,
			},
		}
	case core.EventSignal:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: string(event.Signal),
			Data: proto.EventSignalData{
				From:    string(event.From),
				Name:    event.Name,
				Device:  string(event.Device),
				Payload: json.RawMessage(event.Payload),
			},
		}
	case core.EventAudioFrame:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAudioFrame,
			Data: proto.EventAudioFrameData{
				Channel: event.Channel,
				From:    string(event.From),
				Name:    event.Name,
				Payload: json.RawMessage(event.Payload),
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	}
}

func clientsToProto(entries []core.PresenceEntry) []proto.Client {
	out := make([]proto.Client, 0, len(entries))
	for _, e := range entries {
		out = append(out, proto.Client{ID: string(e.ID), Name: e.Name, Device: string(e.Device)})
	}
	return out
}

func channelsToProto(list []core.ChannelInfo) []proto.Channel {
	out := make([]proto.Channel, 0, len(list))
	for _, ch := range list {
		out = append(out, proto.Channel{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.Description,
			Members:     ch.Members,
		})
	}
	return out
}

func errorOutbound(code, msg string) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: code, Msg: msg}}
}
