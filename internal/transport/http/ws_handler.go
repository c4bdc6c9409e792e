package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/auth"
	"github.com/chatline/chatline-server/internal/config"
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/proto"
	"github.com/chatline/chatline-server/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	engine   *core.Engine
	registry *core.Registry
	clients  *ClientTable
	auth     *auth.Service
	rooms    store.RoomStore
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(engine *core.Engine, registry *core.Registry, clients *ClientTable, authService *auth.Service, rooms store.RoomStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		engine:   engine,
		registry: registry,
		clients:  clients,
		auth:     authService,
		rooms:    rooms,
		cfg:      cfg,
		log:      logger,
	}
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

	connID := uuid.NewString()
	session := core.NewSession(connID, h.registry, h.rooms)
	cl := h.clients.Register(connID, h.cfg.SendBuffer)

	// Teardown runs exactly once even if disconnect races an in-flight send;
	// other members keep receiving the message being broadcast.
	defer h.clients.Unregister(connID)
	defer h.teardownSession(session)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.cfg.MessageRateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, cl)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
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
			h.log.Warn().Err(err).Str("conn_id", connID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		reply := h.handleInbound(ctx, session, limiter, inbound)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, cl *client) error {
	for {
		select {
		case frame := <-cl.send:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", cl.connID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInbound dispatches one client frame and produces the direct reply.
// Broadcast frames travel separately through the client table.
func (h *WSHandler) handleInbound(ctx context.Context, session *core.Session, limiter *rateLimiter, inbound proto.Inbound) proto.Outbound {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return badRequestOutbound("malformed hello data")
		}
		claims, err := h.auth.ValidateToken(hello.Token)
		if err != nil {
			return proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "unauthorized", Msg: "invalid token"},
			}
		}
		if err := session.Attach(claims.UserID, claims.Username); err != nil {
			return errorOutbound(err)
		}
		return ackOutbound("hello", 0, 0)

	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil || join.RoomID == 0 {
			return badRequestOutbound("room_id is required")
		}
		if err := session.Join(ctx, join.RoomID); err != nil {
			return errorOutbound(err)
		}
		h.announcePresence(session, join.RoomID, "user_joined")
		return ackOutbound("join", join.RoomID, 0)

	case proto.InboundTypeLeave:
		var leave proto.JoinData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil || leave.RoomID == 0 {
			return badRequestOutbound("room_id is required")
		}
		if err := session.Leave(leave.RoomID); err != nil {
			return errorOutbound(err)
		}
		h.announcePresence(session, leave.RoomID, "user_left")
		return ackOutbound("leave", leave.RoomID, 0)

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil || msg.RoomID == 0 {
			return badRequestOutbound("room_id is required")
		}
		if !limiter.allow() {
			return proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "rate_limited", Msg: "too many messages"},
			}
		}
		userID, _ := session.User()
		sent, err := h.engine.Submit(ctx, msg.RoomID, session.ConnID, userID, msg.Text)
		if err != nil {
			return errorOutbound(err)
		}
		return ackOutbound("msg", sent.RoomID, sent.Seq)

	case proto.InboundTypeHistory:
		var hist proto.HistoryData
		if err := json.Unmarshal(inbound.Data, &hist); err != nil || hist.RoomID == 0 {
			return badRequestOutbound("room_id is required")
		}
		messages, err := h.engine.History(ctx, hist.RoomID, h.cfg.HistoryLimit)
		if err != nil {
			return errorOutbound(err)
		}
		return historyOutbound(hist.RoomID, messages)

	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "invalid_message", Msg: "unknown message type"},
		}
	}
}

// announcePresence tells a room's other members that this connection joined
// or left. Presence frames carry no sequence and ride outside the room's
// ordering token.
func (h *WSHandler) announcePresence(session *core.Session, roomID int64, event string) {
	userID, username := session.User()
	frame := presenceOutbound(event, roomID, userID, username)

	var targets []string
	for _, id := range h.registry.Members(roomID) {
		if id != session.ConnID {
			targets = append(targets, id)
		}
	}
	h.clients.Broadcast(targets, frame)
}

// teardownSession closes the session and announces the departure to every
// room it was still in.
func (h *WSHandler) teardownSession(session *core.Session) {
	rooms := session.Rooms()
	session.Close()

	userID, username := session.User()
	for _, roomID := range rooms {
		frame := presenceOutbound("user_left", roomID, userID, username)
		h.clients.Broadcast(h.registry.Members(roomID), frame)
	}
}

func badRequestOutbound(msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg},
	}
}
