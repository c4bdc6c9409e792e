package http

import (
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/proto"
)

func messageEvent(msg *core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:     msg.ID,
		RoomID: msg.RoomID,
		UserID: msg.UserID,
		User:   msg.Username,
		Text:   msg.Text,
		Seq:    msg.Seq,
		TS:     msg.CreatedAt.Unix(),
	}
}

func messageOutbound(msg *core.Message) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: "message",
		Data:  messageEvent(msg),
	}
}

func historyOutbound(roomID int64, msgs []*core.Message) proto.Outbound {
	events := make([]proto.EventMessage, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, messageEvent(m))
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: "history",
		Data:  proto.EventHistory{RoomID: roomID, Messages: events},
	}
}

func presenceOutbound(event string, roomID, userID int64, username string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event,
		Data:  proto.EventPresence{RoomID: roomID, UserID: userID, User: username},
	}
}

func ackOutbound(op string, roomID, seq int64) proto.Outbound {
	return proto.Outbound{
		Type: proto.OutboundTypeAck,
		Data: proto.AckData{Op: op, RoomID: roomID, Seq: seq},
	}
}

func errorOutbound(err error) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrorCode(err), Msg: err.Error()},
	}
}
