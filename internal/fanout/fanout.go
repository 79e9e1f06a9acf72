// Package fanout keeps a set of listener callbacks and delivers values to
// all of them. Every registration returns its own unsubscribe function.
package fanout

import "sync"

// Set is a registry of listeners for values of type T. The zero value is
// ready to use.
type Set[T any] struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(T)
}

// Add registers fn and returns a function that removes it again. Calling
// the returned function more than once is harmless.
func (s *Set[T]) Add(fn func(T)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Emit calls every registered listener with v. Listeners are invoked
// outside the lock, so a listener may remove itself.
func (s *Set[T]) Emit(v T) {
	s.mu.RLock()
	fns := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
