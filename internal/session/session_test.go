package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"liveboard/internal/cursor"
	"liveboard/internal/eventbus"
	"liveboard/internal/fanout"
	"liveboard/internal/input"
	"liveboard/internal/presence"
)

// fakeBus records broadcasts and lets the test play peer events.
type fakeBus struct {
	mu        sync.Mutex
	sent      []eventbus.Event
	sentC     chan eventbus.Event
	listeners fanout.Set[eventbus.Event]
}

func newFakeBus() *fakeBus {
	return &fakeBus{sentC: make(chan eventbus.Event, 64)}
}

func (b *fakeBus) Broadcast(e eventbus.Event) {
	b.mu.Lock()
	b.sent = append(b.sent, e)
	b.mu.Unlock()
	b.sentC <- e
}

func (b *fakeBus) Subscribe(fn func(eventbus.Event)) func() {
	return b.listeners.Add(fn)
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

// safePresence is presence.Local behind a mutex; the emission task reads
// it from another goroutine.
type safePresence struct {
	mu    sync.Mutex
	local presence.Local
	peers []presence.Peer
}

func (p *safePresence) Self() presence.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local.Self()
}

func (p *safePresence) Update(patch presence.Patch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local.Update(patch)
}

func (p *safePresence) Others() []presence.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers
}

type harness struct {
	session  *Session
	clock    *clock.Mock
	bus      *fakeBus
	presence *safePresence
	views    chan View
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewMock(),
		bus:      newFakeBus(),
		presence: &safePresence{},
		views:    make(chan View, 256),
	}
	h.session = New(DefaultConfig(), Deps{
		Presence: h.presence,
		Bus:      h.bus,
		Clock:    h.clock,
		Render:   func(v View) { h.views <- v },
	})
	if err := h.session.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(h.session.Unmount)
	return h
}

func (h *harness) waitBroadcast(t *testing.T) eventbus.Event {
	t.Helper()
	select {
	case e := <-h.bus.sentC:
		return e
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for broadcast")
		return eventbus.Event{}
	}
}

func (h *harness) waitView(t *testing.T, match func(View) bool) View {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case v := <-h.views:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("Timeout waiting for view")
			return View{}
		}
	}
}

// expectNoBroadcast fails if anything else is broadcast shortly after.
func (h *harness) expectNoBroadcast(t *testing.T) {
	t.Helper()
	select {
	case e := <-h.bus.sentC:
		t.Errorf("Unexpected extra broadcast %q", e.Value)
	case <-time.After(20 * time.Millisecond):
	}
}

var canvas = &input.Rect{Width: 1000, Height: 1000}

func TestHoldReactionEmitsEveryTick(t *testing.T) {
	h := newHarness(t)
	c := h.session.Cursor()

	h.session.Keyboard().Press(input.KeyReactions)
	if _, err := c.PickReaction("🎉"); err != nil {
		t.Fatalf("PickReaction: %v", err)
	}
	c.PointerDown(input.Pointer{ClientX: 100, ClientY: 200, Bounds: canvas})

	// held for 350ms: ticks at 100, 200 and 300
	for i := 0; i < 3; i++ {
		h.clock.Add(100 * time.Millisecond)
		e := h.waitBroadcast(t)
		if x, y := e.Point(); x != 100 || y != 200 || e.Value != "🎉" {
			t.Errorf("tick %d: unexpected event (%v, %v) %q", i, x, y, e.Value)
		}
		h.expectNoBroadcast(t)
	}
	h.clock.Add(50 * time.Millisecond)
	h.expectNoBroadcast(t)

	if n := h.bus.count(); n != 3 {
		t.Errorf("Expected exactly 3 broadcasts, got %d", n)
	}
	if n := len(h.session.Reactions().Reactions()); n != 3 {
		t.Errorf("Expected 3 local reactions, got %d", n)
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	mock := clock.NewMock()
	bus := newFakeBus()
	p := &safePresence{}
	s := New(Config{}, Deps{Presence: p, Bus: bus, Clock: mock})
	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer s.Unmount()

	c := s.Cursor()
	c.Menu(input.MenuReactions)
	c.PickReaction("👍")
	c.PointerDown(input.Pointer{ClientX: 5, ClientY: 5, Bounds: canvas})

	mock.Add(DefaultConfig().EmitInterval)
	select {
	case <-bus.sentC:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for broadcast at the default interval")
	}
}

func TestReleaseStopsEmission(t *testing.T) {
	h := newHarness(t)
	c := h.session.Cursor()

	c.Menu(input.MenuReactions)
	c.PickReaction("👍")
	c.PointerDown(input.Pointer{ClientX: 1, ClientY: 1, Bounds: canvas})
	h.clock.Add(100 * time.Millisecond)
	h.waitBroadcast(t)

	c.PointerUp()
	h.clock.Add(500 * time.Millisecond)

	select {
	case <-h.bus.sentC:
		t.Error("Expected no broadcast after release")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPeerEventIngestedThenSwept(t *testing.T) {
	h := newHarness(t)

	h.bus.listeners.Emit(eventbus.NewEvent(7, 8, "🔥"))
	v := h.waitView(t, func(v View) bool { return len(v.Reactions) == 1 })
	if r := v.Reactions[0]; r.X != 7 || r.Y != 8 || r.Value != "🔥" {
		t.Errorf("Unexpected reaction view %+v", r)
	}
	if h.presence.Self().Cursor != nil {
		t.Error("Peer event must not touch presence")
	}

	for i := 0; i < 4; i++ {
		h.clock.Add(time.Second)
	}
	h.waitView(t, func(v View) bool { return len(v.Reactions) == 0 })
}

func TestUnmountTearsEverythingDown(t *testing.T) {
	h := newHarness(t)
	c := h.session.Cursor()

	c.Menu(input.MenuReactions)
	c.PickReaction("🎉")
	c.PointerDown(input.Pointer{ClientX: 1, ClientY: 1, Bounds: canvas})

	h.session.Unmount()
	if h.session.Mounted() {
		t.Fatal("Expected unmounted")
	}

	h.clock.Add(time.Second)
	if n := h.bus.count(); n != 0 {
		t.Errorf("Expected no broadcast after unmount, got %d", n)
	}
	if h.bus.listeners.Len() != 0 {
		t.Error("Expected bus subscription removed")
	}
	if h.session.Keyboard().Listening() {
		t.Error("Expected keyboard listener removed")
	}

	h.session.Keyboard().Press(input.KeyEscape)
	if _, ok := c.Mode().(cursor.Reacting); !ok {
		t.Errorf("Keys after unmount should be ignored, mode is %#v", c.Mode())
	}
}

func TestMountTwice(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Mount(context.Background()); err != ErrMounted {
		t.Errorf("Expected ErrMounted, got %v", err)
	}
}

func TestContextCancelUnmounts(t *testing.T) {
	s := New(DefaultConfig(), Deps{Presence: &safePresence{}, Bus: newFakeBus(), Clock: clock.NewMock()})
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for s.Mounted() {
		if time.Now().After(deadline) {
			t.Fatal("Session still mounted after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestKeyboardDrivesCursorAndView(t *testing.T) {
	h := newHarness(t)
	h.presence.mu.Lock()
	h.presence.peers = []presence.Peer{
		{ConnectionID: "a", Color: "#e74c3c", Presence: presence.Presence{Cursor: &presence.Point{X: 1, Y: 2}, Message: "hi"}},
		{ConnectionID: "b"},
		{ConnectionID: "c"},
		{ConnectionID: "d"},
	}
	h.presence.mu.Unlock()

	h.session.Keyboard().Press(input.KeyChat)
	v := h.waitView(t, func(v View) bool { return v.Mode.Kind == cursor.KindChat })

	if len(v.Cursors) != 1 || v.Cursors[0].ConnectionID != "a" || v.Cursors[0].Message != "hi" {
		t.Errorf("Unexpected cursors %+v", v.Cursors)
	}
	if v.Users.Count != 4 || len(v.Users.Shown) != 3 || v.Users.More != 1 {
		t.Errorf("Unexpected users %+v", v.Users)
	}
}
