// Package session hosts one connection's live cursor: the cursor machine,
// the reaction engine and the periodic tasks that drive them.
//
// A Session does nothing until Mount. Mount starts the emission and sweep
// tasks, subscribes the engine to peer events and listens to the keyboard;
// Unmount undoes all of it and returns only once the tasks have stopped, so
// nothing is emitted or broadcast afterwards.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"liveboard/internal/cursor"
	"liveboard/internal/eventbus"
	"liveboard/internal/input"
	"liveboard/internal/interval"
	"liveboard/internal/presence"
	"liveboard/internal/reaction"
)

var ErrMounted = errors.New("session: already mounted")

// Config holds the timing of the periodic tasks.
type Config struct {
	EmitInterval  time.Duration
	SweepInterval time.Duration
	ReactionTTL   time.Duration
}

// DefaultConfig emits at most ten reactions a second and keeps each for
// three to four seconds.
func DefaultConfig() Config {
	return Config{
		EmitInterval:  100 * time.Millisecond,
		SweepInterval: time.Second,
		ReactionTTL:   reaction.DefaultTTL,
	}
}

// Deps are the collaborators a session is built from. Presence and Bus are
// required; the rest may be left nil.
type Deps struct {
	Presence presence.Channel
	Bus      eventbus.Bus
	Keyboard *input.Keyboard
	History  cursor.History
	Clock    clock.Clock
	Logger   *slog.Logger
	// Render receives a fresh View whenever the mode or the reaction set
	// changes while mounted.
	Render func(View)
}

// Session is one connection's cursor and reactions.
type Session struct {
	cfg      Config
	clock    clock.Clock
	presence presence.Channel
	bus      eventbus.Bus
	keyboard *input.Keyboard
	logger   *slog.Logger
	render   func(View)

	machine *cursor.Machine
	engine  *reaction.Engine

	mu       sync.Mutex
	mounted  bool
	tasks    interval.Group
	releases []func()
}

// withDefaults fills unset durations from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.EmitInterval <= 0 {
		c.EmitInterval = def.EmitInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ReactionTTL <= 0 {
		c.ReactionTTL = def.ReactionTTL
	}
	return c
}

// New builds an unmounted session. Zero durations in cfg take their
// default.
func New(cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:      cfg,
		clock:    deps.Clock,
		presence: deps.Presence,
		bus:      deps.Bus,
		keyboard: deps.Keyboard,
		logger:   deps.Logger,
		render:   deps.Render,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.keyboard == nil {
		s.keyboard = &input.Keyboard{}
	}
	s.machine = cursor.New(deps.Presence, deps.History)
	s.engine = reaction.NewEngine(deps.Presence, deps.Bus,
		reaction.WithClock(s.clock),
		reaction.WithTTL(cfg.ReactionTTL),
		reaction.WithLogger(s.logger),
	)
	return s
}

// Cursor returns the cursor machine that pointer, menu and chat input go
// to.
func (s *Session) Cursor() *cursor.Machine { return s.machine }

// Reactions returns the reaction engine.
func (s *Session) Reactions() *reaction.Engine { return s.engine }

// Keyboard returns the keyboard the session listens to while mounted.
func (s *Session) Keyboard() *input.Keyboard { return s.keyboard }

// Mount starts the session. Cancelling ctx has the same effect as
// Unmount.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return ErrMounted
	}
	s.mounted = true

	s.tasks.Every(ctx, s.clock, s.cfg.EmitInterval, s.emit)
	s.tasks.Every(ctx, s.clock, s.cfg.SweepInterval, func() { s.engine.Sweep() })

	s.releases = append(s.releases,
		s.bus.Subscribe(s.engine.Ingest),
		s.keyboard.Listen(func(key string) { s.machine.Key(key) }),
	)
	if s.render != nil {
		s.releases = append(s.releases,
			s.machine.Watch(func(cursor.Mode) { s.refresh() }),
			s.engine.Watch(func(reaction.Set) { s.refresh() }),
		)
	}

	stop := context.AfterFunc(ctx, s.Unmount)
	s.releases = append(s.releases, func() { stop() })

	s.logger.Debug("session mounted",
		"emit_interval", s.cfg.EmitInterval,
		"sweep_interval", s.cfg.SweepInterval)
	return nil
}

// Unmount stops the periodic tasks and drops every subscription. It is
// safe to call more than once.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.mounted = false

	s.tasks.Stop()
	for _, release := range s.releases {
		release()
	}
	s.releases = nil
	s.logger.Debug("session unmounted")
}

// Mounted reports whether the session is running.
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// emit fires once per emission tick and adds at most one reaction.
func (s *Session) emit() {
	if value, ok := s.machine.Emitting(); ok {
		s.engine.Emit(value)
	}
}

func (s *Session) refresh() {
	s.render(s.View())
}
