package cursor

import "fmt"

// Kind names a cursor mode.
type Kind int

const (
	KindHidden Kind = iota
	KindChat
	KindReactionSelector
	KindReaction
)

var kindNames = [...]string{
	KindHidden:           "hidden",
	KindChat:             "chat",
	KindReactionSelector: "reaction_selector",
	KindReaction:         "reaction",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText lets Kind appear as its name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("cursor: unknown mode %q", b)
}

// Mode is the local interaction mode. The set of variants is closed:
// Hidden, Chat, ReactionSelector and Reacting.
type Mode interface {
	Kind() Kind
	isMode()
}

// Hidden shows no cursor affordance.
type Hidden struct{}

// Chat shows a text bubble next to the cursor. PreviousMessage is the last
// submitted text, nil until something has been sent.
type Chat struct {
	PreviousMessage *string
	Message         string
}

// ReactionSelector shows the reaction picker.
type ReactionSelector struct{}

// Reacting emits Reaction while Pressed.
type Reacting struct {
	Reaction string
	Pressed  bool
}

func (Hidden) Kind() Kind           { return KindHidden }
func (Chat) Kind() Kind             { return KindChat }
func (ReactionSelector) Kind() Kind { return KindReactionSelector }
func (Reacting) Kind() Kind         { return KindReaction }

func (Hidden) isMode()           {}
func (Chat) isMode()             {}
func (ReactionSelector) isMode() {}
func (Reacting) isMode()         {}
