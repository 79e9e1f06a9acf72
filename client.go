package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"liveboard/internal/eventbus"
	"liveboard/internal/fanout"
	"liveboard/internal/presence"
	"liveboard/internal/session"
)

var validate = validator.New()

const (
	// maxMessageSize caps one inbound websocket frame
	maxMessageSize = 8 << 10
	// maxReactionSize caps the raw reaction payload relayed to peers
	maxReactionSize = 512
)

var errReactionTooLarge = errors.New("reaction payload too large")

// Client represents a connected WebSocket client. It is the presence
// channel and event transport of its own session.
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Room   *Room
	Color  string
	Send   chan []byte
	closed bool
	mu     sync.Mutex

	seq      uint64
	presence presence.Presence // guarded by Room.mu
	events   fanout.Set[[]byte]
	session  *session.Session
	logger   *slog.Logger
}

func newClient(id string, conn *websocket.Conn, room *Room) *Client {
	h := room.hub
	color, seq := h.nextColor()
	c := &Client{
		ID:     id,
		Conn:   conn,
		Room:   room,
		Color:  color,
		Send:   make(chan []byte, h.sendBuffer),
		seq:    seq,
		logger: h.logger.With("client", id, "room", room.ID),
	}
	c.session = session.New(h.session, session.Deps{
		Presence: c,
		Bus:      eventbus.New(c, c.logger),
		History:  roomHistory{c},
		Clock:    h.clock,
		Logger:   c.logger,
		Render: func(v session.View) {
			c.send(Message{Type: TypeView, UserID: c.ID, Data: v})
		},
	})
	return c
}

// Self implements presence.Channel
func (c *Client) Self() presence.Presence { return c.Room.presenceOf(c) }

// Update implements presence.Channel
func (c *Client) Update(p presence.Patch) { c.Room.UpdatePresence(c, p) }

// Others implements presence.Channel
func (c *Client) Others() []presence.Peer { return c.Room.Others(c) }

// Publish implements eventbus.Transport
func (c *Client) Publish(payload []byte) { c.Room.Publish(c, payload) }

// Listen implements eventbus.Transport
func (c *Client) Listen(fn func([]byte)) func() { return c.events.Add(fn) }

// roomHistory gives the context menu's Undo/Redo access to the user's own
// strokes.
type roomHistory struct{ c *Client }

func (h roomHistory) Undo() {
	if h.c.Room.Undo(h.c.ID) {
		h.c.Room.broadcastMessage(Message{Type: TypeElements, Data: h.c.Room.GetElements()}, nil)
	}
}

func (h roomHistory) Redo() {
	if h.c.Room.Redo(h.c.ID) {
		h.c.Room.broadcastMessage(Message{Type: TypeElements, Data: h.c.Room.GetElements()}, nil)
	}
}

// enqueue hands a frame to writePump without blocking
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		// Channel full, skip this message
	}
}

func (c *Client) send(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal message", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(b)
}

// writePump pumps messages from the Send channel to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.Conn.Close()
	}()

	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump pumps messages from the WebSocket connection into the session
// until the connection closes, then tears the session down before anyone
// is told the user left.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.session.Unmount()
		c.Room.UpdatePresence(c, presence.Clear())

		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()

		c.Room.RemoveClient(c)
		c.Conn.Close()

		c.Room.broadcastMessage(Message{Type: TypeLeave, UserID: c.ID}, c)
		c.Room.broadcastMessage(Message{Type: TypeUserList, Data: c.Room.GetUserList()}, nil)
		c.Room.hub.removeIfEmpty(c.Room)

		c.logger.Info("client left room")
	}()

	if err := c.session.Mount(ctx); err != nil {
		c.logger.Error("mount session", "error", err)
		return
	}

	c.Conn.SetReadLimit(maxMessageSize)
	for {
		_, msgBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", "error", err)
			}
			return
		}
		if err := c.dispatch(msgBytes); err != nil {
			c.logger.Debug("dropping client message", "error", err)
		}
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// dispatch routes one inbound frame
func (c *Client) dispatch(msgBytes []byte) error {
	var msg Inbound
	if err := json.Unmarshal(msgBytes, &msg); err != nil {
		return err
	}
	if err := validate.Struct(msg); err != nil {
		return err
	}

	machine := c.session.Cursor()
	switch msg.Type {
	case TypePointer:
		var p PointerData
		if err := decodeData(msg.Data, &p); err != nil {
			return err
		}
		switch p.Kind {
		case PointerMove:
			machine.PointerMove(p.Pointer)
		case PointerLeave:
			machine.PointerLeave()
		case PointerDown:
			machine.PointerDown(p.Pointer)
		case PointerUp:
			machine.PointerUp()
		}

	case TypeKey:
		var k KeyData
		if err := decodeData(msg.Data, &k); err != nil {
			return err
		}
		c.session.Keyboard().Press(k.Key)

	case TypeMenu:
		var m MenuData
		if err := decodeData(msg.Data, &m); err != nil {
			return err
		}
		machine.Menu(m.Item)

	case TypePick:
		var p PickData
		if err := decodeData(msg.Data, &p); err != nil {
			return err
		}
		_, err := machine.PickReaction(p.Reaction)
		return err

	case TypeChat:
		var ch ChatData
		if err := decodeData(msg.Data, &ch); err != nil {
			return err
		}
		_, err := machine.ChatInput(ch.Text)
		return err

	case TypeChatSubmit:
		_, err := machine.ChatSubmit()
		return err

	case TypeReaction:
		// Raw reactions from clients that emit on their own. Receivers
		// validate the payload.
		if len(msg.Data) > maxReactionSize {
			return errReactionTooLarge
		}
		c.Publish(msg.Data)

	case TypeDraw:
		var element DrawElement
		if err := decodeData(msg.Data, &element); err != nil {
			return err
		}
		element.UserID = c.ID
		c.Room.AddElement(element)
		c.Room.broadcastMessage(Message{Type: TypeDraw, UserID: c.ID, Data: element}, c)

	case TypeClear:
		c.Room.ClearElements()
		c.Room.broadcastMessage(Message{Type: TypeClear, UserID: c.ID}, nil)
	}
	return nil
}
