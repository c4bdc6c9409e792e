package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by store implementations when a row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room represents a chat room.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted chat message. Seq is a monotonically
// increasing integer scoped to the message's room, assigned at insert time.
// Username is denormalized onto reads by joining the users table.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Username  string
	Seq       int64
	Body      string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists all registered users.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUsername changes a user's username.
	UpdateUsername(ctx context.Context, id int64, username string) error

	// DeleteUser removes a user.
	DeleteUser(ctx context.Context, id int64) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByName retrieves a room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRooms lists all rooms.
	ListRooms(ctx context.Context) ([]*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage durably inserts a message, assigning it the next
	// per-room sequence number as part of the same write. A failed append
	// never consumes a sequence number.
	AppendMessage(ctx context.Context, roomID, userID int64, body string) (*Message, error)

	// ListMessages retrieves up to limit messages from a room in ascending
	// sequence order. A positive limit keeps the newest messages; limit <= 0
	// means no limit.
	ListMessages(ctx context.Context, roomID int64, limit int) ([]*Message, error)

	// GetMessageByID retrieves a single message.
	GetMessageByID(ctx context.Context, id int64) (*Message, error)

	// UpdateMessageBody edits a message's text in place.
	UpdateMessageBody(ctx context.Context, id int64, body string) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, id int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
