package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatline/chatline-server/internal/proto"
)

// wsFrame mirrors proto.Outbound with raw data so tests can decode the
// payload per event type.
type wsFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(t *testing.T, ctx context.Context, env *testEnv) *websocket.Conn {
	t.Helper()

	url := strings.Replace(env.srv.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", frameType, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) wsFrame {
	t.Helper()

	var frame wsFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func expectAck(t *testing.T, ctx context.Context, conn *websocket.Conn, op string) proto.AckData {
	t.Helper()

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeAck {
		t.Fatalf("frame type = %q, want ack (error: %+v)", frame.Type, frame.Error)
	}
	var ack proto.AckData
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Op != op {
		t.Fatalf("ack op = %q, want %q", ack.Op, op)
	}
	return ack
}

func TestWebSocketBroadcastAcrossConnections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := newTestEnv(t)
	aliceToken := env.registerUser(t, "alice")
	bobToken := env.registerUser(t, "bob")

	room, err := env.st.CreateRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	bob := dialWS(t, ctx, env)
	sendFrame(t, ctx, bob, proto.InboundTypeHello, proto.HelloData{Token: bobToken})
	expectAck(t, ctx, bob, "hello")
	sendFrame(t, ctx, bob, proto.InboundTypeJoin, proto.JoinData{RoomID: room.ID})
	expectAck(t, ctx, bob, "join")

	alice := dialWS(t, ctx, env)
	sendFrame(t, ctx, alice, proto.InboundTypeHello, proto.HelloData{Token: aliceToken})
	expectAck(t, ctx, alice, "hello")
	sendFrame(t, ctx, alice, proto.InboundTypeJoin, proto.JoinData{RoomID: room.ID})
	expectAck(t, ctx, alice, "join")

	// Bob sees alice arrive.
	joined := readFrame(t, ctx, bob)
	if joined.Type != proto.OutboundTypeEvent || joined.Event != "user_joined" {
		t.Fatalf("bob frame = %+v, want user_joined event", joined)
	}
	var presence proto.EventPresence
	if err := json.Unmarshal(joined.Data, &presence); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if presence.User != "alice" || presence.RoomID != room.ID {
		t.Errorf("presence = %+v, want alice in room %d", presence, room.ID)
	}

	sendFrame(t, ctx, alice, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "hello bob"})

	// Alice gets the broadcast event and the ack; arrival order between the
	// write loop and the reply is not fixed, so collect both.
	sawAck, sawEvent := false, false
	for i := 0; i < 2; i++ {
		frame := readFrame(t, ctx, alice)
		switch frame.Type {
		case proto.OutboundTypeAck:
			var ack proto.AckData
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if ack.Op != "msg" || ack.Seq != 1 {
				t.Errorf("ack = %+v, want op msg seq 1", ack)
			}
			sawAck = true
		case proto.OutboundTypeEvent:
			sawEvent = true
		default:
			t.Fatalf("unexpected frame: %+v", frame)
		}
	}
	if !sawAck || !sawEvent {
		t.Fatalf("sawAck = %v, sawEvent = %v, want both", sawAck, sawEvent)
	}

	frame := readFrame(t, ctx, bob)
	if frame.Type != proto.OutboundTypeEvent || frame.Event != "message" {
		t.Fatalf("bob frame = %+v, want message event", frame)
	}
	var event proto.EventMessage
	if err := json.Unmarshal(frame.Data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Text != "hello bob" || event.Seq != 1 || event.User != "alice" {
		t.Errorf("event = %+v, want text %q seq 1 user alice", event, "hello bob")
	}
}

func TestWebSocketDisconnectDropsMembership(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := newTestEnv(t)
	token := env.registerUser(t, "alice")

	room, err := env.st.CreateRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	conn := dialWS(t, ctx, env)
	sendFrame(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: token})
	expectAck(t, ctx, conn, "hello")
	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{RoomID: room.ID})
	expectAck(t, ctx, conn, "join")

	if members := env.registry.Members(room.ID); len(members) != 1 {
		t.Fatalf("members = %v, want one connection", members)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.registry.Members(room.ID)) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("members = %v, want empty after disconnect", env.registry.Members(room.ID))
}
