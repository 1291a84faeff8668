// Package listener provides a small observer registry used by every
// component that fans events out to subscribers.
//
// Handlers are invoked in registration order over a snapshot taken at
// dispatch time, so adding or removing handlers from inside a handler is
// safe. A failing or panicking handler is logged and does not stop the
// remaining handlers from running.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Cancel removes a previously added handler. Calling it more than once is a no-op.
type Cancel func()

// Handler receives an event payload. A returned error is logged.
type Handler[T any] func(ctx context.Context, v T) error

type entry[T any] struct {
	id uint64
	fn Handler[T]
}

// Registry holds an ordered set of handlers for one event.
type Registry[T any] struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	entries []entry[T]
}

// New creates a registry. name appears in log lines for failing handlers.
func New[T any](name string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{name: name, logger: logger}
}

// Add registers fn and returns its Cancel.
func (r *Registry[T]) Add(fn Handler[T]) Cancel {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, entry[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

// AddFunc registers a handler that cannot fail.
func (r *Registry[T]) AddFunc(fn func(T)) Cancel {
	return r.Add(func(_ context.Context, v T) error {
		fn(v)
		return nil
	})
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes every handler.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Notify calls every handler with v and returns how many failed.
func (r *Registry[T]) Notify(ctx context.Context, v T) int {
	r.mu.Lock()
	snapshot := make([]entry[T], len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	failed := 0
	for _, e := range snapshot {
		if err := r.call(ctx, e.fn, v); err != nil {
			failed++
			r.logger.Warn("listener failed", "event", r.name, "error", err)
		}
	}
	return failed
}

func (r *Registry[T]) call(ctx context.Context, fn Handler[T], v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, v)
}
