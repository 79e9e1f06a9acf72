// Package reaction keeps the locally visible set of ephemeral reaction
// markers.
//
// Markers enter the set in two ways: Emit adds one at the local cursor and
// broadcasts it, Ingest adds one received from a peer. Sweep is the only
// way out; it drops markers older than the TTL. All three replace the set
// with a new value through compare-and-swap, so a reader holding a Set
// never sees it change underneath it.
package reaction

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/segmentio/ksuid"

	"liveboard/internal/eventbus"
	"liveboard/internal/fanout"
	"liveboard/internal/presence"
)

// DefaultTTL is how long a marker stays visible.
const DefaultTTL = 4 * time.Second

// Engine owns one connection's reaction set.
type Engine struct {
	clock    clock.Clock
	presence presence.Channel
	bus      eventbus.Bus
	ttl      time.Duration
	logger   *slog.Logger

	set      atomic.Pointer[Set]
	watchers fanout.Set[Set]
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTTL sets the marker lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with an empty set. Self-emitted reactions are
// placed at ch's cursor and broadcast on bus.
func NewEngine(ch presence.Channel, bus eventbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		clock:    clock.New(),
		presence: ch,
		bus:      bus,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	empty := Set{}
	e.set.Store(&empty)
	return e
}

// Reactions returns the current set.
func (e *Engine) Reactions() Set {
	return *e.set.Load()
}

// Watch calls fn with the new set after every change.
func (e *Engine) Watch(fn func(Set)) (remove func()) {
	return e.watchers.Add(fn)
}

// update swaps in fn(current) and notifies watchers when the set changed.
func (e *Engine) update(fn func(Set) Set) Set {
	for {
		old := e.set.Load()
		next := fn(*old)
		if len(next) == len(*old) && (len(next) == 0 || &next[0] == &(*old)[0]) {
			return *old
		}
		if e.set.CompareAndSwap(old, &next) {
			e.watchers.Emit(next)
			return next
		}
	}
}

func (e *Engine) add(r Reaction) {
	e.update(func(s Set) Set { return s.With(r) })
}

// Emit places value at the current presence cursor, adds it locally and
// broadcasts it. It reports false without side effects when the cursor is
// not on the canvas.
func (e *Engine) Emit(value string) (Reaction, bool) {
	cursor := e.presence.Self().Cursor
	if cursor == nil {
		return Reaction{}, false
	}
	r := Reaction{
		ID:        ksuid.New(),
		Value:     value,
		Timestamp: e.clock.Now(),
		Point:     *cursor,
		Origin:    FromSelf,
	}
	e.add(r)
	e.bus.Broadcast(eventbus.NewEvent(cursor.X, cursor.Y, value))
	return r, true
}

// Ingest adds a peer's event, stamped with the time it arrived. Our own
// broadcasts never come back here, so there is nothing to deduplicate.
func (e *Engine) Ingest(ev eventbus.Event) {
	x, y := ev.Point()
	e.add(Reaction{
		ID:        ksuid.New(),
		Value:     ev.Value,
		Timestamp: e.clock.Now(),
		Point:     presence.Point{X: x, Y: y},
		Origin:    FromPeer,
	})
}

// Sweep drops every reaction whose age has reached the TTL and returns the
// survivors.
func (e *Engine) Sweep() Set {
	cutoff := e.clock.Now().Add(-e.ttl)
	before := len(e.Reactions())
	after := e.update(func(s Set) Set { return s.Since(cutoff) })
	if dropped := before - len(after); dropped > 0 {
		e.logger.Debug("swept reactions", "dropped", dropped, "remaining", len(after))
	}
	return after
}
