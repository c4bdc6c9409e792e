package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/store"
)

// fakeGateway is an in-memory persistence gateway with failure injection.
type fakeGateway struct {
	mu          sync.Mutex
	rooms       map[int64]*store.Room
	users       map[int64]*store.User
	messages    map[int64][]*store.Message
	nextID      int64
	appendCalls int
	failAppends int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		rooms:    make(map[int64]*store.Room),
		users:    make(map[int64]*store.User),
		messages: make(map[int64][]*store.Message),
	}
}

func (g *fakeGateway) addRoom(id int64, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[id] = &store.Room{ID: id, Name: name, CreatedAt: time.Now()}
}

func (g *fakeGateway) addUser(id int64, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[id] = &store.User{ID: id, Username: username, CreatedAt: time.Now()}
}

func (g *fakeGateway) GetRoomByID(_ context.Context, id int64) (*store.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room := g.rooms[id]
	if room == nil {
		return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
	}
	return room, nil
}

func (g *fakeGateway) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	user := g.users[id]
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return user, nil
}

func (g *fakeGateway) AppendMessage(_ context.Context, roomID, userID int64, body string) (*store.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appendCalls++
	if g.failAppends > 0 {
		g.failAppends--
		return nil, fmt.Errorf("disk full")
	}
	g.nextID++
	msg := &store.Message{
		ID:        g.nextID,
		RoomID:    roomID,
		UserID:    userID,
		Seq:       int64(len(g.messages[roomID]) + 1),
		Body:      body,
		CreatedAt: time.Now(),
	}
	g.messages[roomID] = append(g.messages[roomID], msg)
	return msg, nil
}

func (g *fakeGateway) ListMessages(_ context.Context, roomID int64, limit int) ([]*store.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.messages[roomID]
	// A positive limit keeps the newest messages.
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// fakeDeliverer records deliveries per connection, optionally failing some.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered map[string][]*Message
	failConns map[string]bool
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{
		delivered: make(map[string][]*Message),
		failConns: make(map[string]bool),
	}
}

func (d *fakeDeliverer) Deliver(connID string, msg *Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failConns[connID] {
		return fmt.Errorf("send buffer full for connection %s", connID)
	}
	d.delivered[connID] = append(d.delivered[connID], msg)
	return nil
}

func (d *fakeDeliverer) messagesFor(connID string) []*Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Message, len(d.delivered[connID]))
	copy(out, d.delivered[connID])
	return out
}

func newTestEngine(gateway *fakeGateway, registry *Registry, deliverer *fakeDeliverer) *Engine {
	logger := zerolog.New(nil)
	return NewEngine(gateway, registry, deliverer, &logger)
}
