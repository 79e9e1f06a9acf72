// Package eventbus carries one-shot reaction events between peers.
//
// Events travel as JSON bytes over a Transport that the host provides
// (the room hub, optionally bridged across instances). A Bus encodes
// outgoing events and decodes and validates incoming ones; anything that
// does not decode to a complete event is dropped.
package eventbus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrMalformed is returned by Decode for payloads that are not a complete
// event.
var ErrMalformed = errors.New("eventbus: malformed event")

// Event is a single reaction broadcast. X and Y are pointers so that a
// missing coordinate is distinguishable from zero.
type Event struct {
	X     *float64 `json:"x" validate:"required"`
	Y     *float64 `json:"y" validate:"required"`
	Value string   `json:"value" validate:"required,max=64"`
}

// NewEvent builds an event at (x, y).
func NewEvent(x, y float64, value string) Event {
	return Event{X: &x, Y: &y, Value: value}
}

// Point returns the event coordinates. It must only be called on events
// that passed validation.
func (e Event) Point() (x, y float64) {
	return *e.X, *e.Y
}

var validate = validator.New()

// Encode serializes e for the wire.
func Encode(e Event) ([]byte, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return json.Marshal(e)
}

// Decode parses and validates a wire payload.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return e, nil
}

// Transport moves raw payloads to every other connected peer. Publish
// must not deliver back to the publishing connection.
type Transport interface {
	Publish(payload []byte)
	Listen(fn func(payload []byte)) (unsubscribe func())
}

// Bus is the event capability consumed by the reaction engine.
type Bus interface {
	Broadcast(Event)
	Subscribe(fn func(Event)) (unsubscribe func())
}

type bus struct {
	transport Transport
	logger    *slog.Logger
}

// New returns a Bus on top of t. A nil logger discards output.
func New(t Transport, logger *slog.Logger) Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &bus{transport: t, logger: logger}
}

// Broadcast is fire-and-forget; an event that cannot be encoded is logged
// and dropped.
func (b *bus) Broadcast(e Event) {
	payload, err := Encode(e)
	if err != nil {
		b.logger.Warn("dropping outgoing event", "error", err)
		return
	}
	b.transport.Publish(payload)
}

func (b *bus) Subscribe(fn func(Event)) func() {
	return b.transport.Listen(func(payload []byte) {
		e, err := Decode(payload)
		if err != nil {
			b.logger.Debug("dropping inbound event", "error", err, "size", len(payload))
			return
		}
		fn(e)
	})
}
