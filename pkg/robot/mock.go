package robot

import (
	"context"
	"sync"

	"github.com/teslashibe/go-kira/pkg/state"
)

// Mock is an in-memory ExpressionController for tests. It applies the same
// lock rules as Client and records every face it would have sent.
type Mock struct {
	SetExpressionFunc func(ctx context.Context, expr Expression) error
	AnimationFunc     func(ctx context.Context) error

	mu         sync.Mutex
	shared     *state.Shared
	calls      []string
	sent       []Expression
	animations int
}

// NewMock creates a mock sharing flags with shared (a fresh set if nil).
func NewMock(shared *state.Shared) *Mock {
	if shared == nil {
		shared = state.New()
	}
	return &Mock{shared: shared}
}

// SetExpression records expr unless empty or locked.
func (m *Mock) SetExpression(ctx context.Context, expr Expression) error {
	m.record("SetExpression:" + string(expr))
	if expr == "" || m.shared.ExpressionLocked() {
		return nil
	}
	if m.SetExpressionFunc != nil {
		if err := m.SetExpressionFunc(ctx, expr); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, expr)
	m.mu.Unlock()
	return nil
}

// LockExpression takes the lock and records expr if set.
func (m *Mock) LockExpression(ctx context.Context, expr Expression) error {
	m.record("LockExpression:" + string(expr))
	m.shared.SetExpressionLocked(true)
	if expr == "" {
		return nil
	}
	m.mu.Lock()
	m.sent = append(m.sent, expr)
	m.mu.Unlock()
	return nil
}

// UnlockExpression clears the lock.
func (m *Mock) UnlockExpression() {
	m.record("UnlockExpression")
	m.shared.SetExpressionLocked(false)
}

// StartSpeakAnimation counts animations unless locked.
func (m *Mock) StartSpeakAnimation(ctx context.Context) error {
	m.record("StartSpeakAnimation")
	if m.shared.ExpressionLocked() {
		return nil
	}
	if m.AnimationFunc != nil {
		if err := m.AnimationFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.animations++
	m.mu.Unlock()
	return nil
}

func (m *Mock) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns every method call in order, as "Method:arg".
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Sent returns the expressions that would have reached the robot.
func (m *Mock) Sent() []Expression {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Expression(nil), m.sent...)
}

// LastSent returns the most recent expression that reached the robot.
func (m *Mock) LastSent() Expression {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

// Animations returns how many speak animations reached the robot.
func (m *Mock) Animations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.animations
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls, m.sent, m.animations = nil, nil, 0
	m.mu.Unlock()
}
