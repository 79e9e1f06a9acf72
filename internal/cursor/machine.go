// Package cursor tracks what the local user is doing with their pointer
// (nothing, chatting, picking a reaction, emitting one) and keeps the
// user's replicated presence in step with it.
//
// Mode changes come from Transition; Machine adds the presence writes so
// that peers always draw the right affordance: entering Hidden clears both
// cursor and message, chat text is mirrored into the message, pointer
// moves publish the canvas-local point except while the reaction picker is
// open.
package cursor

import (
	"errors"
	"sync"

	"liveboard/internal/fanout"
	"liveboard/internal/input"
	"liveboard/internal/presence"
)

var (
	ErrNotSelecting = errors.New("cursor: reaction picker is not open")
	ErrNotChatting  = errors.New("cursor: not in chat mode")
)

// History is the drawing engine's undo stack, reached from the context
// menu.
type History interface {
	Undo()
	Redo()
}

// Machine owns one connection's cursor mode. It is safe for concurrent
// use.
type Machine struct {
	presence presence.Channel
	history  History

	mu   sync.Mutex
	mode Mode

	watchers fanout.Set[Mode]
}

// New returns a Machine in Hidden mode. history may be nil.
func New(ch presence.Channel, history History) *Machine {
	return &Machine{
		presence: ch,
		history:  history,
		mode:     Hidden{},
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Watch calls fn with the new mode after every change.
func (m *Machine) Watch(fn func(Mode)) (remove func()) {
	return m.watchers.Add(fn)
}

// Emitting returns the reaction to emit when the user holds the pointer
// down in reaction mode.
func (m *Machine) Emitting() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.mode.(Reacting); ok && r.Pressed {
		return r.Reaction, true
	}
	return "", false
}

// apply runs the transition and the presence patch under the lock, then
// notifies watchers if the mode changed.
func (m *Machine) apply(in any, patch func(from, to Mode) *presence.Patch) Mode {
	m.mu.Lock()
	from := m.mode
	to := Transition(from, in)
	m.mode = to
	if patch != nil {
		if p := patch(from, to); p != nil {
			m.presence.Update(*p)
		}
	}
	m.mu.Unlock()

	if to != from {
		m.watchers.Emit(to)
	}
	return to
}

func clearPatch(Mode, Mode) *presence.Patch {
	p := presence.Clear()
	return &p
}

func emptyMessage(Mode, Mode) *presence.Patch {
	p := presence.Say("")
	return &p
}

// Key handles a key release. "/" opens chat, "Escape" hides the cursor
// and wipes the presence, "e" opens the reaction picker.
func (m *Machine) Key(key string) Mode {
	switch key {
	case input.KeyChat:
		return m.apply(KeyPressed{Key: key}, emptyMessage)
	case input.KeyEscape:
		return m.apply(KeyPressed{Key: key}, clearPatch)
	default:
		return m.apply(KeyPressed{Key: key}, nil)
	}
}

// Menu handles a context menu pick. Undo and Redo go to the history.
func (m *Machine) Menu(item string) Mode {
	switch item {
	case input.MenuChat:
		return m.apply(MenuPicked{Item: item}, emptyMessage)
	case input.MenuUndo:
		if m.history != nil {
			m.history.Undo()
		}
	case input.MenuRedo:
		if m.history != nil {
			m.history.Redo()
		}
	}
	return m.apply(MenuPicked{Item: item}, nil)
}

// PointerMove publishes the pointer position, except while the reaction
// picker is open or the event has no bounding box.
func (m *Machine) PointerMove(ev input.Pointer) {
	m.apply(nil, func(from, _ Mode) *presence.Patch {
		if _, ok := from.(ReactionSelector); ok {
			return nil
		}
		pt, ok := ev.Local()
		if !ok {
			return nil
		}
		p := presence.MoveTo(pt)
		return &p
	})
}

// PointerLeave hides the cursor and wipes the presence.
func (m *Machine) PointerLeave() Mode {
	return m.apply(PointerLeft{}, clearPatch)
}

// PointerDown publishes the position and starts emitting in reaction mode.
func (m *Machine) PointerDown(ev input.Pointer) Mode {
	return m.apply(PointerPressed{}, func(Mode, Mode) *presence.Patch {
		pt, ok := ev.Local()
		if !ok {
			return nil
		}
		p := presence.MoveTo(pt)
		return &p
	})
}

// PointerUp stops emitting.
func (m *Machine) PointerUp() Mode {
	return m.apply(PointerReleased{}, nil)
}

// PickReaction selects value from the open picker.
func (m *Machine) PickReaction(value string) (Mode, error) {
	to := m.apply(ReactionPicked{Value: value}, nil)
	if _, ok := to.(Reacting); !ok {
		return to, ErrNotSelecting
	}
	return to, nil
}

// ChatInput replaces the chat draft and mirrors it to peers.
func (m *Machine) ChatInput(text string) (Mode, error) {
	var chatting bool
	to := m.apply(ChatTyped{Text: text}, func(_, to Mode) *presence.Patch {
		if _, chatting = to.(Chat); !chatting {
			return nil
		}
		p := presence.Say(text)
		return &p
	})
	if !chatting {
		return to, ErrNotChatting
	}
	return to, nil
}

// ChatSubmit moves the draft to PreviousMessage. Peers keep seeing the
// submitted text until the next edit.
func (m *Machine) ChatSubmit() (Mode, error) {
	to := m.apply(ChatSent{}, nil)
	if _, ok := to.(Chat); !ok {
		return to, ErrNotChatting
	}
	return to, nil
}
