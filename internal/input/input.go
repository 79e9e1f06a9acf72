// Package input holds the host-side events that drive a cursor: pointer
// positions with the canvas bounding box they were measured against,
// keyboard keys, context-menu picks and chat typing.
package input

import (
	"liveboard/internal/fanout"
	"liveboard/internal/presence"
)

// Keys with a meaning to the cursor.
const (
	KeyChat      = "/"
	KeyEscape    = "Escape"
	KeyReactions = "e"
)

// Context menu entries.
const (
	MenuChat      = "Chat"
	MenuReactions = "Reactions"
	MenuUndo      = "Undo"
	MenuRedo      = "Redo"
)

// Rect is the canvas bounding box in client coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Pointer is a pointer event in client coordinates. Bounds is nil while
// the canvas has no layout, e.g. mid-resize.
type Pointer struct {
	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
	Bounds  *Rect   `json:"bounds"`
}

// Local converts the event to canvas-local coordinates. It reports false
// when there is no bounding box to measure against.
func (p Pointer) Local() (presence.Point, bool) {
	if p.Bounds == nil {
		return presence.Point{}, false
	}
	return presence.Point{
		X: p.ClientX - p.Bounds.X,
		Y: p.ClientY - p.Bounds.Y,
	}, true
}

// Keyboard fans key presses out to the listeners currently registered.
type Keyboard struct {
	listeners fanout.Set[string]
}

// Listen registers fn for key presses until the returned function is
// called.
func (k *Keyboard) Listen(fn func(key string)) (remove func()) {
	return k.listeners.Add(fn)
}

// Press delivers key to every listener. With no listener the key is lost.
func (k *Keyboard) Press(key string) {
	k.listeners.Emit(key)
}

// Listening reports whether anyone is registered.
func (k *Keyboard) Listening() bool {
	return k.listeners.Len() > 0
}
