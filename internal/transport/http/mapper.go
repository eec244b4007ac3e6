package http

import (
	"encoding/json"

	"github.com/olegsharov/converse-server/internal/core"
	"github.com/olegsharov/converse-server/internal/proto"
	"github.com/olegsharov/converse-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.ContainerID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "container_id is required"}, nil
		}
		kind := core.CommandJoinChannel
		if inbound.Type == proto.InboundTypeLeave {
			kind = core.CommandLeaveChannel
		}
		return &core.Command{Kind: kind, ContainerID: join.ContainerID}, nil, nil

	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if send.ContainerID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "container_id is required"}, nil
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			ContainerID: send.ContainerID,
			Content:     send.Content,
			MessageType: store.MessageType(send.Type),
			ReplyTo:     send.ReplyTo,
		}, nil, nil

	case proto.InboundTypeEdit:
		var edit proto.EditData
		if err := json.Unmarshal(inbound.Data, &edit); err != nil {
			return nil, nil, err
		}
		if edit.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			MessageID: edit.MessageID,
			Content:   edit.Content,
		}, nil, nil

	case proto.InboundTypeDelete:
		var del proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &del); err != nil {
			return nil, nil, err
		}
		if del.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandDeleteMessage, MessageID: del.MessageID}, nil, nil

	case proto.InboundTypeReact:
		var react proto.ReactData
		if err := json.Unmarshal(inbound.Data, &react); err != nil {
			return nil, nil, err
		}
		if react.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandReactMessage,
			MessageID: react.MessageID,
			Emoji:     react.Emoji,
		}, nil, nil

	case proto.InboundTypeRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, nil, err
		}
		if read.ContainerID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "container_id is required"}, nil
		}
		return &core.Command{
			Kind:        core.CommandMarkRead,
			ContainerID: read.ContainerID,
			MessageIDs:  read.MessageIDs,
		}, nil, nil

	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.ContainerID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "container_id is required"}, nil
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, ContainerID: typing.ContainerID}, nil, nil

	case proto.InboundTypeSetStatus:
		var status proto.StatusData
		if err := json.Unmarshal(inbound.Data, &status); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:   core.CommandSetStatus,
			Status: store.PresenceStatus(status.Status),
		}, nil, nil

	case proto.InboundTypeListOnline:
		return &core.Command{Kind: core.CommandListOnline}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func messageToProto(msg *store.Message) proto.Message {
	out := proto.Message{
		ID:          msg.ID,
		ContainerID: msg.ContainerID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		Type:        string(msg.Type),
		State:       string(msg.State),
		ReplyTo:     msg.ReplyTo,
		CreatedAt:   msg.CreatedAt,
		EditedAt:    msg.EditedAt,
		DeletedAt:   msg.DeletedAt,
	}
	for _, r := range msg.ReadBy {
		out.ReadBy = append(out.ReadBy, proto.ReadReceipt{IdentityID: r.IdentityID, ReadAt: r.ReadAt})
	}
	for _, r := range msg.Reactions {
		out.Reactions = append(out.Reactions, proto.Reaction{IdentityID: r.IdentityID, Emoji: r.Emoji})
	}
	return out
}

func reactionsToProto(reactions []store.Reaction) []proto.Reaction {
	out := make([]proto.Reaction, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, proto.Reaction{IdentityID: r.IdentityID, Emoji: r.Emoji})
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventChannelJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventChannelJoined{ContainerID: event.ContainerID},
		}
	case core.EventMessageNew, core.EventMessageEdited:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMessage{
				Message:     messageToProto(event.Message),
				ContainerID: event.ContainerID,
			},
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMessageDeleted{
				MessageID:   event.MessageID,
				ContainerID: event.ContainerID,
			},
		}
	case core.EventMessageReacted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMessageReacted{
				MessageID:   event.MessageID,
				Reactions:   reactionsToProto(event.Reactions),
				ContainerID: event.ContainerID,
			},
		}
	case core.EventMessagesRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMessagesRead{
				ContainerID: event.ContainerID,
				MessageIDs:  event.MessageIDs,
				ReadBy:      event.IdentityID,
			},
		}
	case core.EventTypingStarted, core.EventTypingStopped:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventTyping{
				IdentityID:  event.IdentityID,
				Username:    event.Username,
				ContainerID: event.ContainerID,
			},
		}
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventPresence{
				IdentityID: event.IdentityID,
				Status:     string(event.Status),
				LastSeen:   event.LastSeen,
			},
		}
	case core.EventOnlineList:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventOnlineList{Identities: event.Online},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
