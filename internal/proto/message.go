package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello   = "hello"
	InboundTypeJoin    = "join"
	InboundTypeLeave   = "leave"
	InboundTypeMsg     = "msg"
	InboundTypeHistory = "history"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"
)

// HelloData attaches an authenticated user to the connection via its token.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join or leave a specific room.
type JoinData struct {
	RoomID int64 `json:"room_id"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	RoomID int64  `json:"room_id"`
	Text   string `json:"text"`
}

// HistoryData requests a room's persisted messages.
type HistoryData struct {
	RoomID int64 `json:"room_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries one chat message to a room member. Seq is the
// authoritative order within the room.
type EventMessage struct {
	ID     int64  `json:"id"`
	RoomID int64  `json:"room_id"`
	UserID int64  `json:"user_id"`
	User   string `json:"user"`
	Text   string `json:"text"`
	Seq    int64  `json:"seq"`
	TS     int64  `json:"ts"`
}

// EventHistory delivers a room's message history in ascending seq order.
type EventHistory struct {
	RoomID   int64          `json:"room_id"`
	Messages []EventMessage `json:"messages"`
}

// EventPresence announces a member joining or leaving a room.
type EventPresence struct {
	RoomID int64  `json:"room_id"`
	UserID int64  `json:"user_id,omitempty"`
	User   string `json:"user,omitempty"`
}

// AckData confirms a join/leave/msg request.
type AckData struct {
	Op     string `json:"op"`
	RoomID int64  `json:"room_id,omitempty"`
	Seq    int64  `json:"seq,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
