package realtime

import (
	"log"
	"sync"

	"skillswap-service/internal/observability"
)

// RoomID names a logical broadcast group. Rooms are only ever built through
// the typed constructors below so conversation and notification channels
// cannot collide.
type RoomID string

// ConversationRoom is the room shared by both parties of a conversation.
func ConversationRoom(conversationID string) RoomID {
	return RoomID("conversation:" + conversationID)
}

// NotificationRoom is the private per-user channel every joined connection
// of that user belongs to. It is the stable target for server-initiated
// pushes regardless of which conversation rooms the client joined.
func NotificationRoom(userID string) RoomID {
	return RoomID("notifications:" + userID)
}

// Conn is one live client connection the room manager can write to.
// Implementations must be safe for concurrent Send calls.
type Conn interface {
	ID() string
	Send(event string, payload any) error
}

// RoomManager maintains the connection registry and many-to-many room
// membership. Delivery is fire-and-forget: write failures are logged and
// counted, and eviction is left to the failing connection's read loop.
type RoomManager struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	rooms  map[RoomID]map[string]struct{}
	member map[string]map[RoomID]struct{}
}

// NewRoomManager creates an empty room manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		conns:  make(map[string]Conn),
		rooms:  make(map[RoomID]map[string]struct{}),
		member: make(map[string]map[RoomID]struct{}),
	}
}

// Register adds a connection to the registry.
func (m *RoomManager) Register(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID()] = conn
}

// Unregister removes a connection and its entire room membership.
func (m *RoomManager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room := range m.member[connID] {
		delete(m.rooms[room], connID)
		if len(m.rooms[room]) == 0 {
			delete(m.rooms, room)
		}
	}
	delete(m.member, connID)
	delete(m.conns, connID)
}

// JoinRoom adds a connection to a room. Unknown connections are a no-op.
func (m *RoomManager) JoinRoom(connID string, room RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; !ok {
		return
	}
	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(map[string]struct{})
	}
	m.rooms[room][connID] = struct{}{}
	if _, ok := m.member[connID]; !ok {
		m.member[connID] = make(map[RoomID]struct{})
	}
	m.member[connID][room] = struct{}{}
}

// LeaveRoom removes a connection from a room.
func (m *RoomManager) LeaveRoom(connID string, room RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.rooms, room)
		}
	}
	delete(m.member[connID], room)
}

// Broadcast delivers an event to every connection in the room and returns
// how many sends succeeded.
func (m *RoomManager) Broadcast(room RoomID, event string, payload any) int {
	return m.broadcast(room, "", event, payload)
}

// BroadcastExcept delivers to the room excluding one connection, used for
// typing relays where the sender must not hear itself.
func (m *RoomManager) BroadcastExcept(room RoomID, exceptConnID, event string, payload any) int {
	return m.broadcast(room, exceptConnID, event, payload)
}

func (m *RoomManager) broadcast(room RoomID, exceptConnID, event string, payload any) int {
	m.mu.RLock()
	targets := make([]Conn, 0, len(m.rooms[room]))
	for connID := range m.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		if conn, ok := m.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		if err := conn.Send(event, payload); err != nil {
			log.Printf("room broadcast failed room=%s conn=%s: %v", room, conn.ID(), &DeliveryError{Event: event, Err: err})
			observability.IncDeliveryError(event)
			continue
		}
		sent++
	}
	return sent
}

// BroadcastAll delivers an event to every registered connection, used for
// presence transitions.
func (m *RoomManager) BroadcastAll(event string, payload any) {
	m.mu.RLock()
	targets := make([]Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(event, payload); err != nil {
			log.Printf("broadcast failed conn=%s: %v", conn.ID(), &DeliveryError{Event: event, Err: err})
			observability.IncDeliveryError(event)
		}
	}
}
