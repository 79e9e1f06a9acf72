package main

import (
	"github.com/goccy/go-json"

	"liveboard/internal/input"
	"liveboard/internal/presence"
	"liveboard/internal/session"
)

// Message types sent to clients
const (
	TypeDraw     = "draw"
	TypeClear    = "clear"
	TypeElements = "elements"
	TypeSync     = "sync"
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeUserList = "userlist"
	TypePresence = "presence"
	TypeView     = "view"
)

// Message types received from clients. TypeDraw and TypeClear are accepted
// as well.
const (
	TypePointer    = "pointer"
	TypeKey        = "key"
	TypeMenu       = "menu"
	TypePick       = "pick"
	TypeChat       = "chat"
	TypeChatSubmit = "chat_submit"
	TypeReaction   = "reaction"
)

// Pointer event kinds
const (
	PointerMove  = "move"
	PointerLeave = "leave"
	PointerDown  = "down"
	PointerUp    = "up"
)

// Message is the envelope for everything sent to a client
type Message struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Inbound is the envelope for everything a client sends. Data is decoded
// once the type is known.
type Inbound struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

// PointerData is a pointer event in client coordinates
type PointerData struct {
	Kind string `json:"kind" validate:"required,oneof=move leave down up"`
	input.Pointer
}

// KeyData is a released key
type KeyData struct {
	Key string `json:"key" validate:"required"`
}

// MenuData is a context menu pick
type MenuData struct {
	Item string `json:"item" validate:"required"`
}

// PickData is a reaction chosen from the picker
type PickData struct {
	Reaction string `json:"reaction" validate:"required,max=64"`
}

// ChatData is the current chat draft
type ChatData struct {
	Text string `json:"text" validate:"max=280"`
}

// DrawElement represents a single drawing element (line stroke)
type DrawElement struct {
	ID          string  `json:"id" validate:"required"`
	Type        string  `json:"elementType" validate:"required"` // "line", "rectangle", "ellipse", etc.
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	StrokeColor string  `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth" validate:"gte=0"`
	UserID      string  `json:"userId"`
}

// SyncData is sent to a new joiner: canvas state, identity and everyone
// already in the room
type SyncData struct {
	Elements []DrawElement   `json:"elements"`
	UserID   string          `json:"userId"`
	Color    string          `json:"color"`
	Peers    []presence.Peer `json:"peers"`
	View     session.View    `json:"view"`
}

// UserInfo represents a connected user
type UserInfo struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// RoomInfo is the read-only room summary served over HTTP
type RoomInfo struct {
	ID       string          `json:"id"`
	Peers    []presence.Peer `json:"peers"`
	Elements int             `json:"elements"`
}
