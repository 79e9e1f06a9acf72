package reaction

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"liveboard/internal/eventbus"
	"liveboard/internal/presence"
)

type fakeBus struct {
	mu   sync.Mutex
	sent []eventbus.Event
}

func (b *fakeBus) Broadcast(e eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, e)
}

func (b *fakeBus) Subscribe(func(eventbus.Event)) func() { return func() {} }

func newEngine(t *testing.T) (*Engine, *clock.Mock, *presence.Local, *fakeBus) {
	t.Helper()
	mock := clock.NewMock()
	ch := &presence.Local{}
	bus := &fakeBus{}
	return NewEngine(ch, bus, WithClock(mock)), mock, ch, bus
}

func TestEmitUsesPresenceCursor(t *testing.T) {
	e, mock, ch, bus := newEngine(t)
	ch.Update(presence.MoveTo(presence.Point{X: 100, Y: 200}))

	r, ok := e.Emit("🎉")
	if !ok {
		t.Fatal("Expected emission")
	}
	if r.Point != (presence.Point{X: 100, Y: 200}) || r.Value != "🎉" || !r.Timestamp.Equal(mock.Now()) {
		t.Errorf("Unexpected reaction %+v", r)
	}
	if r.Origin != FromSelf {
		t.Errorf("Expected self origin")
	}

	if len(e.Reactions()) != 1 {
		t.Errorf("Expected 1 local reaction, got %d", len(e.Reactions()))
	}
	if len(bus.sent) != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", len(bus.sent))
	}
	if x, y := bus.sent[0].Point(); x != 100 || y != 200 || bus.sent[0].Value != "🎉" {
		t.Errorf("Unexpected broadcast %v %v %q", x, y, bus.sent[0].Value)
	}
}

func TestEmitWithoutCursor(t *testing.T) {
	e, _, _, bus := newEngine(t)
	if _, ok := e.Emit("🎉"); ok {
		t.Error("Expected no emission without a cursor")
	}
	if len(e.Reactions()) != 0 || len(bus.sent) != 0 {
		t.Error("Expected no side effects")
	}
}

func TestIngestAddsOnceWithoutPresence(t *testing.T) {
	e, mock, ch, bus := newEngine(t)
	mock.Add(time.Minute)

	e.Ingest(eventbus.NewEvent(5, 6, "🔥"))

	got := e.Reactions()
	if len(got) != 1 {
		t.Fatalf("Expected 1 reaction, got %d", len(got))
	}
	if got[0].Origin != FromPeer || got[0].Point != (presence.Point{X: 5, Y: 6}) {
		t.Errorf("Unexpected reaction %+v", got[0])
	}
	if !got[0].Timestamp.Equal(mock.Now()) {
		t.Errorf("Expected receive-time stamp")
	}
	if ch.Self().Cursor != nil {
		t.Error("Ingest must not touch presence")
	}
	if len(bus.sent) != 0 {
		t.Error("Ingest must not rebroadcast")
	}
}

func TestSweepBoundary(t *testing.T) {
	e, mock, _, _ := newEngine(t)
	e.Ingest(eventbus.NewEvent(0, 0, "👍"))

	mock.Add(DefaultTTL - time.Millisecond)
	if len(e.Sweep()) != 1 {
		t.Fatal("Reaction should survive just before the TTL")
	}

	mock.Add(time.Millisecond)
	if len(e.Sweep()) != 0 {
		t.Fatal("Reaction should be gone at the TTL")
	}
}

func TestSweepKeepsNewer(t *testing.T) {
	e, mock, _, _ := newEngine(t)

	e.Ingest(eventbus.NewEvent(1, 1, "first"))
	mock.Add(3500 * time.Millisecond)
	e.Ingest(eventbus.NewEvent(2, 2, "second"))
	mock.Add(600 * time.Millisecond)

	got := e.Sweep()
	if len(got) != 1 || got[0].Value != "second" {
		t.Errorf("Expected only second to survive, got %+v", got)
	}
}

func TestSweepIdempotent(t *testing.T) {
	e, mock, _, _ := newEngine(t)
	for i := 0; i < 5; i++ {
		e.Ingest(eventbus.NewEvent(float64(i), 0, "x"))
		mock.Add(time.Second)
	}

	first := e.Sweep()
	second := e.Sweep()

	if len(first) != len(second) {
		t.Fatalf("Expected same survivors, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("survivor %d differs", i)
		}
	}
}

func TestReadersKeepTheirSnapshot(t *testing.T) {
	e, mock, _, _ := newEngine(t)
	e.Ingest(eventbus.NewEvent(1, 1, "a"))
	snapshot := e.Reactions()

	e.Ingest(eventbus.NewEvent(2, 2, "b"))
	mock.Add(time.Hour)
	e.Sweep()

	if len(snapshot) != 1 || snapshot[0].Value != "a" {
		t.Errorf("Snapshot changed underneath reader: %+v", snapshot)
	}
}

func TestWatchOnlyOnChange(t *testing.T) {
	e, mock, _, _ := newEngine(t)
	changes := 0
	e.Watch(func(Set) { changes++ })

	e.Ingest(eventbus.NewEvent(1, 1, "a"))
	e.Sweep()
	mock.Add(DefaultTTL)
	e.Sweep()
	e.Sweep()

	if changes != 2 {
		t.Errorf("Expected 2 changes, got %d", changes)
	}
}

func TestConcurrentIngest(t *testing.T) {
	e, _, _, _ := newEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.Ingest(eventbus.NewEvent(1, 1, "x"))
				e.Sweep()
			}
		}()
	}
	wg.Wait()

	if got := len(e.Reactions()); got != 400 {
		t.Errorf("Expected 400 reactions, got %d", got)
	}
}

func TestSetSince(t *testing.T) {
	base := time.Unix(1000, 0)
	s := Set{}.With(
		Reaction{Value: "old", Timestamp: base},
		Reaction{Value: "new", Timestamp: base.Add(time.Second)},
	)

	if got := s.Since(base); len(got) != 1 || got[0].Value != "new" {
		t.Errorf("Expected strict cutoff, got %+v", got)
	}
	if got := s.Since(base.Add(-time.Second)); &got[0] != &s[0] {
		t.Error("Expected receiver back when nothing is dropped")
	}
}
