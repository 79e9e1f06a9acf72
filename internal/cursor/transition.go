package cursor

import "liveboard/internal/input"

// Inputs understood by Transition.
type (
	KeyPressed      struct{ Key string }
	MenuPicked      struct{ Item string }
	ReactionPicked  struct{ Value string }
	ChatTyped       struct{ Text string }
	ChatSent        struct{}
	PointerLeft     struct{}
	PointerPressed  struct{}
	PointerReleased struct{}
)

// Transition returns the mode that follows m after in. It is pure: no
// presence, no history. Unknown inputs leave the mode unchanged.
func Transition(m Mode, in any) Mode {
	switch e := in.(type) {
	case KeyPressed:
		switch e.Key {
		case input.KeyChat:
			return Chat{}
		case input.KeyEscape:
			return Hidden{}
		case input.KeyReactions:
			return ReactionSelector{}
		}

	case MenuPicked:
		switch e.Item {
		case input.MenuChat:
			return Chat{}
		case input.MenuReactions:
			return ReactionSelector{}
		}

	case ReactionPicked:
		if _, ok := m.(ReactionSelector); ok {
			return Reacting{Reaction: e.Value}
		}

	case ChatTyped:
		if _, ok := m.(Chat); ok {
			return Chat{Message: e.Text}
		}

	case ChatSent:
		if c, ok := m.(Chat); ok {
			sent := c.Message
			return Chat{PreviousMessage: &sent}
		}

	case PointerLeft:
		return Hidden{}

	case PointerPressed:
		if r, ok := m.(Reacting); ok {
			r.Pressed = true
			return r
		}

	case PointerReleased:
		if r, ok := m.(Reacting); ok {
			r.Pressed = false
			return r
		}
	}
	return m
}
