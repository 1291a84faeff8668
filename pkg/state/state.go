// Package state holds the process-wide flags shared between the voice
// pipeline components.
//
// A single Shared value is created at startup and injected into every
// component that reads or writes these flags. Nothing in this package is a
// package-level global.
package state

import "sync/atomic"

// Shared is safe for concurrent use.
type Shared struct {
	muted            atomic.Bool
	expressionLocked atomic.Bool
}

// New returns a Shared with every flag cleared.
func New() *Shared {
	return &Shared{}
}

// Muted reports whether the microphone is currently muted.
func (s *Shared) Muted() bool { return s.muted.Load() }

// SetMuted sets the microphone mute flag.
func (s *Shared) SetMuted(v bool) { s.muted.Store(v) }

// ExpressionLocked reports whether face expression changes are suppressed.
func (s *Shared) ExpressionLocked() bool { return s.expressionLocked.Load() }

// SetExpressionLocked sets the expression lock.
func (s *Shared) SetExpressionLocked(v bool) { s.expressionLocked.Store(v) }

// Snapshot is a point-in-time copy of the flags, for status endpoints.
type Snapshot struct {
	Muted            bool `json:"muted"`
	ExpressionLocked bool `json:"expressionLocked"`
}

// Snapshot copies the current flag values.
func (s *Shared) Snapshot() Snapshot {
	return Snapshot{
		Muted:            s.Muted(),
		ExpressionLocked: s.ExpressionLocked(),
	}
}
