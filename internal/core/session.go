package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chatline/chatline-server/internal/store"
)

// RoomResolver checks room existence against the persistence gateway.
type RoomResolver interface {
	GetRoomByID(ctx context.Context, id int64) (*store.Room, error)
}

// Session tracks one live connection: its identity and its view of joined
// rooms, mirrored into the shared Registry. A session may attach a user,
// join and leave rooms in any order, and is torn down exactly once by
// Close; every operation after Close fails with ErrSessionClosed.
//
// Safe for concurrent use; a client may retry or reconnect while a prior
// operation on the same session is still in flight.
type Session struct {
	ConnID string

	registry *Registry
	rooms    RoomResolver

	mu       sync.Mutex
	userID   int64
	username string
	closed   bool

	closeOnce sync.Once
}

// NewSession binds a fresh connection to the registry.
func NewSession(connID string, registry *Registry, rooms RoomResolver) *Session {
	return &Session{
		ConnID:   connID,
		registry: registry,
		rooms:    rooms,
	}
}

// Attach associates an authenticated user with the session. May be called
// again to switch identity.
func (s *Session) Attach(userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError(ErrCodeSessionClosed, "session is closed", ErrSessionClosed)
	}
	s.userID = userID
	s.username = username
	return nil
}

// User returns the attached user identity, or (0, "") when none is attached.
func (s *Session) User() (int64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.username
}

// Join subscribes the connection to a room after verifying the room exists.
// Joining a room twice has no additional effect.
func (s *Session) Join(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wrapError(ErrCodeSessionClosed, "session is closed", ErrSessionClosed)
	}
	s.mu.Unlock()

	// Existence check hits the store outside the session lock; the registry
	// update itself never blocks on I/O.
	if _, err := s.rooms.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wrapError(ErrCodeRoomNotFound, fmt.Sprintf("room %d not found", roomID), ErrRoomNotFound)
		}
		return wrapError(ErrCodePersistence, "resolve room", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Closed while we were resolving the room; DropConnection already ran.
		return wrapError(ErrCodeSessionClosed, "session is closed", ErrSessionClosed)
	}
	s.registry.Join(roomID, s.ConnID)
	return nil
}

// Leave unsubscribes the connection from a room. Never fails for a room the
// connection is not in.
func (s *Session) Leave(roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError(ErrCodeSessionClosed, "session is closed", ErrSessionClosed)
	}
	s.registry.Leave(roomID, s.ConnID)
	return nil
}

// Rooms returns a snapshot of the rooms this connection has joined.
func (s *Session) Rooms() []int64 {
	return s.registry.Rooms(s.ConnID)
}

// Close is the terminal transition: it drops the connection from every room
// exactly once and makes the session permanently unusable. Calling Close
// again is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.registry.DropConnection(s.ConnID)
	})
}
