package core

import "sync"

// Registry tracks which live connections are joined to which rooms. It is a
// pure in-memory bidirectional index: the forward map (room -> connections)
// and the reverse map (connection -> rooms) are always updated together under
// one lock, so a connection appears in a room's member set exactly when the
// room appears in that connection's joined set. Nothing here is persisted;
// the index starts empty on every process start.
type Registry struct {
	mu     sync.RWMutex
	byRoom map[int64]map[string]struct{}
	byConn map[string]map[int64]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byRoom: make(map[int64]map[string]struct{}),
		byConn: make(map[string]map[int64]struct{}),
	}
}

// Join adds connID to the room's member set. Idempotent.
func (r *Registry) Join(roomID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.byRoom[roomID]
	if room == nil {
		room = make(map[string]struct{})
		r.byRoom[roomID] = room
	}
	room[connID] = struct{}{}

	conn := r.byConn[connID]
	if conn == nil {
		conn = make(map[int64]struct{})
		r.byConn[connID] = conn
	}
	conn[roomID] = struct{}{}
}

// Leave removes connID from the room's member set. Leaving a room the
// connection is not in is a no-op.
func (r *Registry) Leave(roomID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, connID)
}

func (r *Registry) leaveLocked(roomID int64, connID string) {
	if room := r.byRoom[roomID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	if conn := r.byConn[connID]; conn != nil {
		delete(conn, roomID)
		if len(conn) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Members returns a snapshot of the connection ids currently joined to the
// room, taken at the instant of the call.
func (r *Registry) Members(roomID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.byRoom[roomID]
	members := make([]string, 0, len(room))
	for connID := range room {
		members = append(members, connID)
	}
	return members
}

// Rooms returns a snapshot of the room ids the connection has joined.
func (r *Registry) Rooms(connID string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn := r.byConn[connID]
	rooms := make([]int64, 0, len(conn))
	for roomID := range conn {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// DropConnection removes the connection from every room it had joined.
func (r *Registry) DropConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.byConn[connID] {
		r.leaveLocked(roomID, connID)
	}
	delete(r.byConn, connID)
}
