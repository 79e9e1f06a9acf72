// Package presence describes the small per-connection record every peer
// can see: where the pointer is and what the user is currently saying.
//
// Each connection is the only writer of its own record. The transport that
// replicates records is a Channel implementation supplied by the caller.
package presence

// Point is a position in canvas-local coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is the replicated state of one connection. A nil Cursor means
// the pointer is not over the canvas; an empty Message means not chatting.
type Presence struct {
	Cursor  *Point `json:"cursor"`
	Message string `json:"message"`
}

// Patch is a shallow update. Only fields whose Has flag is set are applied,
// which lets a patch clear the cursor without touching the message.
type Patch struct {
	Cursor     *Point
	Message    string
	HasCursor  bool
	HasMessage bool
}

// MoveTo sets the cursor to p.
func MoveTo(p Point) Patch {
	return Patch{Cursor: &p, HasCursor: true}
}

// Say sets the message.
func Say(msg string) Patch {
	return Patch{Message: msg, HasMessage: true}
}

// Clear removes both the cursor and the message.
func Clear() Patch {
	return Patch{HasCursor: true, HasMessage: true}
}

// Apply returns p with patch merged in. The receiver is not modified.
func (p Presence) Apply(patch Patch) Presence {
	if patch.HasCursor {
		if patch.Cursor == nil {
			p.Cursor = nil
		} else {
			c := *patch.Cursor
			p.Cursor = &c
		}
	}
	if patch.HasMessage {
		p.Message = patch.Message
	}
	return p
}

// Peer is another connection's presence as seen from this one.
type Peer struct {
	ConnectionID string   `json:"connectionId"`
	Color        string   `json:"color"`
	Presence     Presence `json:"presence"`
}

// Channel is the replicated presence store as seen by one connection.
// Update is fire-and-forget: it returns as soon as the local record has
// been merged.
type Channel interface {
	Self() Presence
	Update(Patch)
	Others() []Peer
}

// Local is an unreplicated Channel. It is handy for single-user sessions
// and tests; Others is always empty.
type Local struct {
	self Presence
}

func (l *Local) Self() Presence { return l.self }
func (l *Local) Update(p Patch) { l.self = l.self.Apply(p) }
func (l *Local) Others() []Peer { return nil }
