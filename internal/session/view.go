package session

import "liveboard/internal/cursor"

// maxShownUsers is how many peers the user strip lists by name.
const maxShownUsers = 3

// View is everything a client needs to draw the live layer.
type View struct {
	Mode      ModeView       `json:"mode"`
	Reactions []ReactionView `json:"reactions"`
	Cursors   []CursorView   `json:"cursors"`
	Users     Users          `json:"users"`
}

// ModeView flattens a cursor.Mode; only the fields of the active variant
// are set.
type ModeView struct {
	Kind            cursor.Kind `json:"kind"`
	Message         string      `json:"message,omitempty"`
	PreviousMessage *string     `json:"previousMessage,omitempty"`
	Reaction        string      `json:"reaction,omitempty"`
	Pressed         bool        `json:"pressed,omitempty"`
}

type ReactionView struct {
	ID    string  `json:"id"`
	Value string  `json:"value"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	AgeMS int64   `json:"ageMs"`
}

// CursorView is a peer cursor on the canvas.
type CursorView struct {
	ConnectionID string  `json:"connectionId"`
	Color        string  `json:"color"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Message      string  `json:"message,omitempty"`
}

// Users summarizes who else is connected.
type Users struct {
	Count int      `json:"count"`
	Shown []string `json:"shown"`
	More  int      `json:"more"`
}

func describe(m cursor.Mode) ModeView {
	v := ModeView{Kind: m.Kind()}
	switch m := m.(type) {
	case cursor.Chat:
		v.Message = m.Message
		v.PreviousMessage = m.PreviousMessage
	case cursor.Reacting:
		v.Reaction = m.Reaction
		v.Pressed = m.Pressed
	}
	return v
}

// View builds a snapshot of the current state.
func (s *Session) View() View {
	now := s.clock.Now()

	set := s.engine.Reactions()
	reactions := make([]ReactionView, 0, len(set))
	for _, r := range set {
		reactions = append(reactions, ReactionView{
			ID:    r.ID.String(),
			Value: r.Value,
			X:     r.Point.X,
			Y:     r.Point.Y,
			AgeMS: now.Sub(r.Timestamp).Milliseconds(),
		})
	}

	peers := s.presence.Others()
	cursors := make([]CursorView, 0, len(peers))
	users := Users{Count: len(peers), Shown: []string{}}
	for i, p := range peers {
		if i < maxShownUsers {
			users.Shown = append(users.Shown, p.ConnectionID)
		}
		if p.Presence.Cursor == nil {
			continue
		}
		cursors = append(cursors, CursorView{
			ConnectionID: p.ConnectionID,
			Color:        p.Color,
			X:            p.Presence.Cursor.X,
			Y:            p.Presence.Cursor.Y,
			Message:      p.Presence.Message,
		})
	}
	users.More = max(0, len(peers)-maxShownUsers)

	return View{
		Mode:      describe(s.machine.Mode()),
		Reactions: reactions,
		Cursors:   cursors,
		Users:     users,
	}
}
