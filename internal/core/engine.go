package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/metrics"
	"github.com/chatline/chatline-server/internal/store"
)

// Gateway is the persistence surface the engine depends on.
type Gateway interface {
	GetRoomByID(ctx context.Context, id int64) (*store.Room, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	AppendMessage(ctx context.Context, roomID, userID int64, body string) (*store.Message, error)
	ListMessages(ctx context.Context, roomID int64, limit int) ([]*store.Message, error)
}

// Deliverer pushes a message to one live connection. Implemented by the
// transport layer; a failed delivery concerns only that connection.
type Deliverer interface {
	Deliver(connID string, msg *Message) error
}

// Engine turns a raw send request into a durably ordered, fanned-out
// message. Persistence and broadcast for one room happen inside a per-room
// critical section, so the order members observe is exactly the order the
// store assigned. Submissions to different rooms never contend.
type Engine struct {
	gateway  Gateway
	registry *Registry
	deliver  Deliverer
	log      *zerolog.Logger

	mu    sync.Mutex
	rooms map[int64]*sync.Mutex
}

// NewEngine constructs the ordering and broadcast engine.
func NewEngine(gateway Gateway, registry *Registry, deliver Deliverer, logger *zerolog.Logger) *Engine {
	return &Engine{
		gateway:  gateway,
		registry: registry,
		deliver:  deliver,
		log:      logger,
		rooms:    make(map[int64]*sync.Mutex),
	}
}

// roomLock returns the ordering token for a room, creating it on first use.
func (e *Engine) roomLock(roomID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock := e.rooms[roomID]
	if lock == nil {
		lock = &sync.Mutex{}
		e.rooms[roomID] = lock
	}
	return lock
}

// Submit validates, durably persists, and broadcasts one message. On success
// the returned message is the caller's acknowledgment. Validation and
// persistence failures leave no trace: no sequence number is consumed and
// nothing is delivered.
func (e *Engine) Submit(ctx context.Context, roomID int64, senderConnID string, userID int64, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, coreError(ErrCodeValidation, "message text is empty")
	}

	user, err := e.gateway.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeValidation, fmt.Sprintf("unknown user %d", userID))
		}
		return nil, wrapError(ErrCodePersistence, "resolve user", err)
	}

	if _, err := e.gateway.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, wrapError(ErrCodeRoomNotFound, fmt.Sprintf("room %d not found", roomID), ErrRoomNotFound)
		}
		return nil, wrapError(ErrCodePersistence, "resolve room", err)
	}

	// One persist+broadcast in flight per room. The token is held across the
	// durable write and the fan-out so concurrent senders cannot interleave
	// sequence assignment and delivery order.
	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	saved, err := e.gateway.AppendMessage(ctx, roomID, userID, text)
	if err != nil {
		return nil, wrapError(ErrCodePersistence, "append message", err)
	}
	metrics.MessagesSubmitted.Inc()

	msg := &Message{
		ID:        saved.ID,
		RoomID:    saved.RoomID,
		UserID:    saved.UserID,
		Username:  user.Username,
		Text:      saved.Body,
		Seq:       saved.Seq,
		CreatedAt: saved.CreatedAt,
	}

	// Membership snapshot at the instant broadcast begins. A connection that
	// joins after this point catches the message up via History.
	for _, connID := range e.registry.Members(roomID) {
		if err := e.deliver.Deliver(connID, msg); err != nil {
			metrics.DeliveriesDropped.Inc()
			e.log.Warn().
				Err(err).
				Str("conn_id", connID).
				Int64("room_id", roomID).
				Int64("seq", msg.Seq).
				Msg("drop delivery to member")
			continue
		}
		metrics.MessagesDelivered.Inc()
	}

	return msg, nil
}

// History returns a room's persisted messages in ascending sequence order.
// Purely a read; it does not serialize against in-flight submissions, so it
// may legitimately miss a message whose Submit has not yet returned.
func (e *Engine) History(ctx context.Context, roomID int64, limit int) ([]*Message, error) {
	if _, err := e.gateway.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, wrapError(ErrCodeRoomNotFound, fmt.Sprintf("room %d not found", roomID), ErrRoomNotFound)
		}
		return nil, wrapError(ErrCodePersistence, "resolve room", err)
	}

	rows, err := e.gateway.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, wrapError(ErrCodePersistence, "list messages", err)
	}

	messages := make([]*Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, &Message{
			ID:        row.ID,
			RoomID:    row.RoomID,
			UserID:    row.UserID,
			Username:  row.Username,
			Text:      row.Body,
			Seq:       row.Seq,
			CreatedAt: row.CreatedAt,
		})
	}
	return messages, nil
}
