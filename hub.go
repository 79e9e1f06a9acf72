package main

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"liveboard/internal/presence"
	"liveboard/internal/session"
)

// Room represents a collaborative drawing room
type Room struct {
	ID       string
	Clients  map[*Client]bool
	Elements []DrawElement
	mu       sync.RWMutex

	hub  *Hub
	redo map[string][]DrawElement // per user, cleared by that user's next draw
}

// Bridge carries event payloads to other server instances
type Bridge interface {
	Publish(room string, payload []byte) error
}

// Hub manages all rooms and clients
type Hub struct {
	Rooms map[string]*Room
	mu    sync.RWMutex

	ctx        context.Context
	session    session.Config
	clock      clock.Clock
	logger     *slog.Logger
	sendBuffer int
	bridge     Bridge

	colorMu    sync.Mutex
	colorIndex int
	seq        uint64
}

// User colors for visual distinction
var userColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#34495e",
}

// NewHub creates a hub whose sessions live until ctx is done.
func NewHub(ctx context.Context, cfg Config, clk clock.Clock, logger *slog.Logger) *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		ctx:        ctx,
		session:    cfg.SessionConfig(),
		clock:      clk,
		logger:     logger,
		sendBuffer: cfg.SendBuffer,
	}
}

// SetBridge routes every room's events through b as well.
func (h *Hub) SetBridge(b Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

func (h *Hub) nextColor() (string, uint64) {
	h.colorMu.Lock()
	defer h.colorMu.Unlock()
	color := userColors[h.colorIndex%len(userColors)]
	h.colorIndex++
	h.seq++
	return color, h.seq
}

// GetOrCreateRoom returns an existing room or creates a new one
func (h *Hub) GetOrCreateRoom(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomLocked(roomID)
}

// Join registers a new client in the room, creating the room if needed.
// Lookup and registration happen under h.mu so removeIfEmpty cannot
// drop the room in between.
func (h *Hub) Join(roomID, userID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.roomLocked(roomID)
	client := newClient(userID, conn, room)
	room.AddClient(client)
	return client
}

// roomLocked must be called with h.mu held.
func (h *Hub) roomLocked(roomID string) *Room {
	if room, exists := h.Rooms[roomID]; exists {
		return room
	}

	room := &Room{
		ID:       roomID,
		Clients:  make(map[*Client]bool),
		Elements: make([]DrawElement, 0),
		hub:      h,
		redo:     make(map[string][]DrawElement),
	}
	h.Rooms[roomID] = room
	return room
}

// Room returns an existing room.
func (h *Hub) Room(roomID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.Rooms[roomID]
	return room, ok
}

// removeIfEmpty forgets a room once its last client has left. Its drawing
// goes with it.
func (h *Hub) removeIfEmpty(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room.mu.RLock()
	empty := len(room.Clients) == 0
	room.mu.RUnlock()
	if empty && h.Rooms[room.ID] == room {
		delete(h.Rooms, room.ID)
		h.logger.Info("room closed", "room", room.ID)
	}
}

// DeliverRemote hands an event payload from another instance to every
// local client of the room.
func (h *Hub) DeliverRemote(roomID string, payload []byte) {
	if room, ok := h.Room(roomID); ok {
		room.deliver(payload, nil)
	}
}

// Stats returns room and client counts
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := 0
	for _, room := range h.Rooms {
		room.mu.RLock()
		clients += len(room.Clients)
		room.mu.RUnlock()
	}
	return map[string]int{
		"rooms":   len(h.Rooms),
		"clients": clients,
	}
}

// AddClient adds a client to the room
func (r *Room) AddClient(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clients[client] = true
}

// RemoveClient removes a client from the room
func (r *Room) RemoveClient(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Clients, client)
	delete(r.redo, client.ID)
}

// Broadcast sends a message to all clients in the room except the sender
func (r *Room) Broadcast(msg []byte, sender *Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for client := range r.Clients {
		if client != sender {
			client.enqueue(msg)
		}
	}
}

// BroadcastToAll sends a message to all clients including sender
func (r *Room) BroadcastToAll(msg []byte) {
	r.Broadcast(msg, nil)
}

func (r *Room) broadcastMessage(msg Message, sender *Client) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.hub.logger.Error("marshal message", "type", msg.Type, "error", err)
		return
	}
	r.Broadcast(b, sender)
}

// presenceOf returns the client's own record
func (r *Room) presenceOf(c *Client) presence.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.presence
}

// UpdatePresence merges patch into the client's record and relays the
// result to everyone else. Only the client itself calls this.
func (r *Room) UpdatePresence(c *Client, patch presence.Patch) {
	r.mu.Lock()
	c.presence = c.presence.Apply(patch)
	peer := presence.Peer{ConnectionID: c.ID, Color: c.Color, Presence: c.presence}
	r.mu.Unlock()

	r.broadcastMessage(Message{Type: TypePresence, UserID: c.ID, Data: peer}, c)
}

// Others lists every other client's presence in join order
func (r *Room) Others(c *Client) []presence.Peer {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.Clients))
	for client := range r.Clients {
		if client != c {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })
	peers := make([]presence.Peer, 0, len(clients))
	for _, client := range clients {
		peers = append(peers, presence.Peer{
			ConnectionID: client.ID,
			Color:        client.Color,
			Presence:     client.presence,
		})
	}
	r.mu.RUnlock()
	return peers
}

// Publish delivers an event payload to every other client and to other
// instances. It is never echoed back to the sender.
func (r *Room) Publish(sender *Client, payload []byte) {
	r.deliver(payload, sender)

	r.hub.mu.RLock()
	b := r.hub.bridge
	r.hub.mu.RUnlock()
	if b != nil {
		if err := b.Publish(r.ID, payload); err != nil {
			r.hub.logger.Debug("bridge publish failed", "room", r.ID, "error", err)
		}
	}
}

func (r *Room) deliver(payload []byte, sender *Client) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.Clients))
	for client := range r.Clients {
		if client != sender {
			targets = append(targets, client)
		}
	}
	r.mu.RUnlock()

	for _, client := range targets {
		client.events.Emit(payload)
	}
}

// AddElement adds a drawing element to the room's state
func (r *Room) AddElement(element DrawElement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Elements = append(r.Elements, element)
	delete(r.redo, element.UserID)
}

// ClearElements clears all elements from the room
func (r *Room) ClearElements() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Elements = make([]DrawElement, 0)
	r.redo = make(map[string][]DrawElement)
}

// GetElements returns a copy of all elements
func (r *Room) GetElements() []DrawElement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	elements := make([]DrawElement, len(r.Elements))
	copy(elements, r.Elements)
	return elements
}

// Undo removes the user's most recent element. It reports false when the
// user has nothing left to undo.
func (r *Room) Undo(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Elements) - 1; i >= 0; i-- {
		if r.Elements[i].UserID != userID {
			continue
		}
		element := r.Elements[i]
		r.Elements = append(r.Elements[:i:i], r.Elements[i+1:]...)
		r.redo[userID] = append(r.redo[userID], element)
		return true
	}
	return false
}

// Redo restores the user's last undone element.
func (r *Room) Redo(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	stack := r.redo[userID]
	if len(stack) == 0 {
		return false
	}
	element := stack[len(stack)-1]
	r.redo[userID] = stack[:len(stack)-1]
	r.Elements = append(r.Elements, element)
	return true
}

// GetUserList returns list of users in the room
func (r *Room) GetUserList() []UserInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]UserInfo, 0, len(r.Clients))
	for client := range r.Clients {
		users = append(users, UserInfo{
			ID:    client.ID,
			Color: client.Color,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Info summarizes the room for the HTTP API
func (r *Room) Info() RoomInfo {
	peers := r.Others(nil)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{ID: r.ID, Peers: peers, Elements: len(r.Elements)}
}
