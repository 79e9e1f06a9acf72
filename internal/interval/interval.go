// Package interval runs a callback at a fixed cadence until it is stopped.
//
// A Task owns one goroutine. Stop cancels it and waits for the goroutine to
// return, so once Stop returns the callback will not run again. Tasks are
// also bound to the context they were started with.
//
//	task := interval.Every(ctx, clock.New(), time.Second, sweep)
//	defer task.Stop()
package interval

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a running periodic callback.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts calling fn every period on clk. The first call happens one
// period after Every returns. Calls never overlap: a tick that arrives while
// fn is still running is dropped.
func Every(ctx context.Context, clk clock.Clock, period time.Duration, fn func()) *Task {
	if period <= 0 {
		panic("interval: non-positive period")
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// The ticker is created before the goroutine starts so a mock clock
	// advanced right after Every returns still fires it.
	ticker := clk.Ticker(period)
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Prefer cancellation when both are ready.
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()
	return t
}

// Stop cancels the task and blocks until its goroutine has exited. It is
// safe to call Stop more than once and from several goroutines, but not
// from inside the task's own callback.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Group stops a set of tasks together.
type Group struct {
	mu    sync.Mutex
	tasks []*Task
}

// Every starts a task and adds it to the group.
func (g *Group) Every(ctx context.Context, clk clock.Clock, period time.Duration, fn func()) *Task {
	t := Every(ctx, clk, period, fn)
	g.mu.Lock()
	g.tasks = append(g.tasks, t)
	g.mu.Unlock()
	return t
}

// Stop stops every task in the group and empties it.
func (g *Group) Stop() {
	g.mu.Lock()
	tasks := g.tasks
	g.tasks = nil
	g.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
}
