package http

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/metrics"
	"github.com/chatline/chatline-server/internal/proto"
)

// client is one live websocket connection's outbound side.
type client struct {
	connID string
	send   chan proto.Outbound
}

// ClientTable maps connection ids to their outbound channels. It implements
// core.Deliverer: the broadcast engine hands it a message per member and the
// table routes it to that member's send buffer.
type ClientTable struct {
	log *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewClientTable creates an empty client table.
func NewClientTable(logger *zerolog.Logger) *ClientTable {
	return &ClientTable{
		log:     logger,
		clients: make(map[string]*client),
	}
}

// Register adds a connection and returns its outbound channel holder.
func (t *ClientTable) Register(connID string, sendBuffer int) *client {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	c := &client{
		connID: connID,
		send:   make(chan proto.Outbound, sendBuffer),
	}

	t.mu.Lock()
	t.clients[connID] = c
	t.mu.Unlock()

	metrics.ConnectedClients.Inc()
	return c
}

// Unregister removes a connection. Pending buffered frames are abandoned.
func (t *ClientTable) Unregister(connID string) {
	t.mu.Lock()
	_, ok := t.clients[connID]
	delete(t.clients, connID)
	t.mu.Unlock()

	if ok {
		metrics.ConnectedClients.Dec()
	}
}

// Broadcast pushes a transport-level frame to each listed connection. Frames
// to members with a full send buffer are dropped; presence traffic is not
// recoverable and not worth stalling for.
func (t *ClientTable) Broadcast(connIDs []string, frame proto.Outbound) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, id := range connIDs {
		c := t.clients[id]
		if c == nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			t.log.Warn().Str("conn_id", id).Str("event", frame.Event).Msg("drop broadcast frame")
		}
	}
}

// Deliver routes one message to one member connection. A missing connection
// or a full send buffer is a per-member failure; the engine logs and drops
// it without affecting other members.
func (t *ClientTable) Deliver(connID string, msg *core.Message) error {
	t.mu.RLock()
	c := t.clients[connID]
	t.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("connection %s not registered", connID)
	}

	select {
	case c.send <- messageOutbound(msg):
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", connID)
	}
}

var _ core.Deliverer = (*ClientTable)(nil)
