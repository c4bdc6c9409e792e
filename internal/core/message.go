package core

import "time"

// Message is the domain model for a chat message as delivered to room
// members. Seq is the authoritative order key within a room; CreatedAt may
// collide across senders and must not be used for ordering.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Username  string
	Text      string
	Seq       int64
	CreatedAt time.Time
}
